package chat

import (
	"context"
	"crypto/subtle"
	"fmt"
	"log/slog"
	"strings"

	"github.com/trempist/trempist/pkg/store"
)

// AdminCommandPrefix reserves chat messages for the admin handler.
const AdminCommandPrefix = "/admin"

// AdminHandler executes administrative text commands. Commands carry the
// admin token inline: "/admin <token> <command> [args...]". Every operation
// honors the prefix of the conversation it arrived on.
type AdminHandler struct {
	store  store.Store
	token  string
	logger *slog.Logger
}

// NewAdminHandler creates the handler. An empty token disables all commands.
func NewAdminHandler(s store.Store, token string) *AdminHandler {
	return &AdminHandler{
		store:  s,
		token:  token,
		logger: slog.Default().With("component", "admin"),
	}
}

// Handle parses and runs one admin command, returning the reply text.
func (h *AdminHandler) Handle(ctx context.Context, prefix store.Prefix, text string) string {
	fields := strings.Fields(text)
	// "/admin <token> <cmd> ..."
	if len(fields) < 3 {
		return adminUsage
	}
	if h.token == "" || subtle.ConstantTimeCompare([]byte(fields[1]), []byte(h.token)) != 1 {
		h.logger.Warn("rejected admin command with bad token")
		return "אין הרשאה."
	}

	cmd, args := fields[2], fields[3:]
	switch cmd {
	case "delete":
		return h.deleteUser(ctx, prefix, args)
	case "reset":
		return h.resetUser(ctx, prefix, args)
	case "phone":
		return h.changePhone(ctx, prefix, args)
	case "rides":
		return h.listRides(ctx, prefix, args)
	}
	return adminUsage
}

func (h *AdminHandler) deleteUser(ctx context.Context, prefix store.Prefix, args []string) string {
	if len(args) != 1 {
		return adminUsage
	}
	if err := h.store.DeleteUser(ctx, prefix, args[0]); err != nil {
		return fmt.Sprintf("מחיקה נכשלה: %v", err)
	}
	return fmt.Sprintf("המשתמש %s נמחק.", args[0])
}

func (h *AdminHandler) resetUser(ctx context.Context, prefix store.Prefix, args []string) string {
	if len(args) != 1 {
		return adminUsage
	}
	if err := store.RemoveAllRecords(ctx, h.store, prefix, args[0]); err != nil {
		return fmt.Sprintf("איפוס נכשל: %v", err)
	}
	return fmt.Sprintf("הרשומות של %s אופסו.", args[0])
}

func (h *AdminHandler) changePhone(ctx context.Context, prefix store.Prefix, args []string) string {
	if len(args) != 2 {
		return adminUsage
	}
	if err := h.store.ChangePhone(ctx, prefix, args[0], args[1]); err != nil {
		return fmt.Sprintf("שינוי מספר נכשל: %v", err)
	}
	return fmt.Sprintf("המספר עודכן מ-%s ל-%s.", args[0], args[1])
}

func (h *AdminHandler) listRides(ctx context.Context, prefix store.Prefix, args []string) string {
	if len(args) != 1 {
		return adminUsage
	}
	lists, err := store.ListRecords(ctx, h.store, prefix, args[0])
	if err != nil {
		return fmt.Sprintf("שליפה נכשלה: %v", err)
	}

	var b strings.Builder
	fmt.Fprintf(&b, "%s: %d נסיעות, %d בקשות\n", args[0], len(lists.DriverRides), len(lists.HitchhikerRequests))
	for _, r := range lists.DriverRides {
		fmt.Fprintf(&b, "🚗 %s → %s (%s)\n", r.Origin, r.Destination, r.ID)
	}
	for _, r := range lists.HitchhikerRequests {
		fmt.Fprintf(&b, "🙋 %s → %s (%s)\n", r.Origin, r.Destination, r.ID)
	}
	return strings.TrimRight(b.String(), "\n")
}

const adminUsage = `פקודות ניהול:
/admin <token> delete <phone>
/admin <token> reset <phone>
/admin <token> phone <old> <new>
/admin <token> rides <phone>`
