/*
Package wallet reads and funds user wallets.

Funding is idempotent on the payment reference: the balance credit and the
SUCCESS transaction row are written in one atomic unit, and a reference that
already settled is answered from the stored row instead of crediting again.

Usage:

	svc := wallet.NewService(store, payments, cache, metrics, logger)

	// Read balances (served from the redis cache when warm)
	w, err := svc.GetWallet(ctx, userID)

	// Start a card or bank top-up, then confirm it once paid
	charge, err := svc.InitiateTopUp(ctx, wallet.TopUpRequest{...})
	res, err := svc.ConfirmTopUp(ctx, userID, payment.MethodStripe, charge.Reference)

	// Manual credit
	res, err := svc.Fund(ctx, wallet.FundRequest{...})

Errors are DomainErrors from airswitch/internal/errors.
*/
package wallet
