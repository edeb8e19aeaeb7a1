package app

import "bizdesk/pkg/domain"

// ListInvoices returns invoices issued by the caller, newest first, with client and items.
func (a *App) ListInvoices(p Principal) ([]domain.Invoice, error) {
	return a.store.ListInvoicesByUser(p.UserID)
}

// ListClients returns clients owned by the caller.
func (a *App) ListClients(p Principal) ([]domain.Client, error) {
	return a.store.ListClientsByUser(p.UserID)
}
