// Package bot is the Telegram command surface: listings, quick add/adjust
// verbs, workbook export as a document, and import from an uploaded one.
package bot

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/Spok95/estoque-bot/internal/domain/debtors"
	"github.com/Spok95/estoque-bot/internal/domain/inventory"
	"github.com/Spok95/estoque-bot/internal/notify"
	"github.com/Spok95/estoque-bot/internal/transfer"
)

type Bot struct {
	api      *tgbotapi.BotAPI
	log      *slog.Logger
	inv      *inventory.Provider
	deb      *debtors.Provider
	sched    *notify.Scheduler
	transfer *transfer.Service

	adminChat int64
	threshold int
}

func New(api *tgbotapi.BotAPI, log *slog.Logger,
	inv *inventory.Provider, deb *debtors.Provider,
	sched *notify.Scheduler, tr *transfer.Service,
	adminChatID int64, lowStockThreshold int) *Bot {

	return &Bot{
		api: api, log: log, inv: inv, deb: deb,
		sched: sched, transfer: tr,
		adminChat: adminChatID, threshold: lowStockThreshold,
	}
}

func (b *Bot) Run(ctx context.Context, timeoutSec int) error {
	u := tgbotapi.NewUpdate(0)
	u.Timeout = timeoutSec
	updates := b.api.GetUpdatesChan(u)
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case upd := <-updates:
			if upd.Message != nil {
				b.onMessage(ctx, upd)
			}
		}
	}
}

func (b *Bot) send(msg tgbotapi.Chattable) {
	if _, err := b.api.Send(msg); err != nil {
		b.log.Error("send failed", "err", err)
	}
}

func (b *Bot) reply(chatID int64, text string) {
	b.send(tgbotapi.NewMessage(chatID, text))
}

func (b *Bot) onMessage(ctx context.Context, upd tgbotapi.Update) {
	msg := upd.Message
	chatID := msg.Chat.ID

	// single-household tool: only the configured chat may operate it
	if b.adminChat != 0 && chatID != b.adminChat {
		return
	}

	if msg.Document != nil {
		b.handleImport(ctx, chatID, msg.Document)
		return
	}

	cmd, arg := splitCommand(msg.Text)
	switch cmd {
	case "/start", "/ajuda":
		b.reply(chatID, helpText)
	case "/estoque":
		b.handleListItems(chatID)
	case "/item":
		b.handleAddItem(ctx, chatID, arg)
	case "/editaritem":
		b.handleEditItem(ctx, chatID, arg)
	case "/mais":
		b.handleAdjust(ctx, chatID, arg, +1)
	case "/menos":
		b.handleAdjust(ctx, chatID, arg, -1)
	case "/removeritem":
		b.handleRemoveItem(ctx, chatID, arg)
	case "/devedores":
		b.handleListDebtors(chatID)
	case "/devedor":
		b.handleAddDebtor(ctx, chatID, arg)
	case "/pago":
		b.handleMarkPaid(ctx, chatID, arg)
	case "/removerdevedor":
		b.handleRemoveDebtor(ctx, chatID, arg)
	case "/exportar":
		b.handleExport(chatID)
	case "/notificacoes":
		b.handleToggleNotifications(chatID, arg)
	case "/verificar":
		b.handleEvaluateNow(ctx, chatID)
	default:
		b.reply(chatID, "Comando desconhecido. Use /ajuda.")
	}
}

const helpText = `Comandos:
/estoque — listar itens
/item Nome;Qtd[;Categoria;Preço;Local] — adicionar item
/editaritem Nome;NovoNome;Qtd[;Categoria;Preço;Local] — editar item
/mais Nome — +1 na quantidade
/menos Nome — -1 na quantidade (nunca abaixo de 0)
/removeritem Nome — remover item
/devedores — listar devedores em aberto
/devedor Nome;Valor[;Vencimento AAAA-MM-DD] — adicionar devedor
/pago Nome — marcar como pago
/removerdevedor Nome — remover devedor
/exportar — baixar planilha (Devedores + Estoque)
/notificacoes on|off — lembretes
/verificar — avaliar lembretes agora
Envie um arquivo .xlsx para importar.`

func splitCommand(text string) (string, string) {
	text = strings.TrimSpace(text)
	if text == "" || !strings.HasPrefix(text, "/") {
		return "", text
	}
	parts := strings.SplitN(text, " ", 2)
	cmd := strings.SplitN(parts[0], "@", 2)[0]
	if len(parts) == 1 {
		return cmd, ""
	}
	return cmd, strings.TrimSpace(parts[1])
}

func fields(arg string) []string {
	parts := strings.Split(arg, ";")
	for i := range parts {
		parts[i] = strings.TrimSpace(parts[i])
	}
	return parts
}

func (b *Bot) findItem(name string) (inventory.Item, bool) {
	for _, it := range b.inv.Items() {
		if strings.EqualFold(it.Name, name) {
			return it, true
		}
	}
	return inventory.Item{}, false
}

func (b *Bot) findDebtor(name string) (debtors.Debtor, bool) {
	for _, d := range b.deb.Debtors() {
		if strings.EqualFold(d.Name, name) {
			return d, true
		}
	}
	return debtors.Debtor{}, false
}

func (b *Bot) handleListItems(chatID int64) {
	items := b.inv.Items()
	if len(items) == 0 {
		b.reply(chatID, "Estoque vazio.")
		return
	}
	byCat := make(map[string][]inventory.Item)
	for _, it := range items {
		cat := it.CategoryOrDefault()
		byCat[cat] = append(byCat[cat], it)
	}
	var sb strings.Builder
	for cat, its := range byCat {
		fmt.Fprintf(&sb, "— %s\n", cat)
		for _, it := range its {
			fmt.Fprintf(&sb, "  %s: %d", it.Name, it.Quantity)
			if it.Location != nil {
				fmt.Fprintf(&sb, " (%s)", *it.Location)
			}
			sb.WriteString("\n")
		}
	}
	b.reply(chatID, sb.String())
}

// parseItemFields maps "Nome;Qtd[;Categoria;Preço;Local]" into an Item.
// Empty optional positions stay unset.
func parseItemFields(parts []string) (inventory.Item, error) {
	if len(parts) < 2 || parts[0] == "" {
		return inventory.Item{}, fmt.Errorf("informe pelo menos Nome;Qtd")
	}
	qty, err := debtors.ParseAmount(parts[1])
	if err != nil {
		return inventory.Item{}, fmt.Errorf("quantidade inválida: %q", parts[1])
	}
	it := inventory.Item{Name: parts[0], Quantity: int(qty.IntPart())}
	if it.Quantity < 0 {
		it.Quantity = 0
	}
	if len(parts) > 2 && parts[2] != "" {
		it.Category = &parts[2]
	}
	if len(parts) > 3 && parts[3] != "" {
		price, err := debtors.ParseAmount(parts[3])
		if err != nil {
			return inventory.Item{}, fmt.Errorf("preço inválido: %q", parts[3])
		}
		it.Price = &price
	}
	if len(parts) > 4 && parts[4] != "" {
		it.Location = &parts[4]
	}
	return it, nil
}

func (b *Bot) handleAddItem(ctx context.Context, chatID int64, arg string) {
	it, err := parseItemFields(fields(arg))
	if err != nil {
		b.reply(chatID, err.Error())
		return
	}
	created, err := b.inv.AddItem(ctx, it)
	if err != nil {
		b.log.Error("add item", "err", err)
		b.reply(chatID, "Não foi possível salvar o item.")
		return
	}
	b.reply(chatID, fmt.Sprintf("Item «%s» salvo (%d em estoque).", created.Name, created.Quantity))
}

func (b *Bot) handleEditItem(ctx context.Context, chatID int64, arg string) {
	parts := fields(arg)
	if len(parts) < 3 {
		b.reply(chatID, "Use: /editaritem Nome;NovoNome;Qtd[;Categoria;Preço;Local]")
		return
	}
	cur, ok := b.findItem(parts[0])
	if !ok {
		b.reply(chatID, fmt.Sprintf("Item «%s» não encontrado.", parts[0]))
		return
	}
	it, err := parseItemFields(parts[1:])
	if err != nil {
		b.reply(chatID, err.Error())
		return
	}
	if err := b.inv.UpdateItem(ctx, cur.ID, it); err != nil {
		b.log.Error("update item", "id", cur.ID, "err", err)
		b.reply(chatID, "Não foi possível atualizar o item.")
		return
	}
	b.reply(chatID, fmt.Sprintf("Item «%s» atualizado.", it.Name))
}

func (b *Bot) handleAdjust(ctx context.Context, chatID int64, name string, delta int) {
	it, ok := b.findItem(name)
	if !ok {
		b.reply(chatID, fmt.Sprintf("Item «%s» não encontrado.", name))
		return
	}
	var err error
	if delta > 0 {
		err = b.inv.IncrementQuantity(ctx, it.ID)
	} else {
		err = b.inv.DecrementQuantity(ctx, it.ID)
	}
	if err != nil {
		b.log.Error("adjust quantity", "id", it.ID, "err", err)
		b.reply(chatID, "Não foi possível ajustar a quantidade.")
		return
	}
	updated, _ := b.inv.Find(it.ID)
	b.reply(chatID, fmt.Sprintf("%s: %d em estoque.", updated.Name, updated.Quantity))
}

func (b *Bot) handleRemoveItem(ctx context.Context, chatID int64, name string) {
	it, ok := b.findItem(name)
	if !ok {
		b.reply(chatID, fmt.Sprintf("Item «%s» não encontrado.", name))
		return
	}
	if err := b.inv.RemoveItem(ctx, it.ID); err != nil {
		b.log.Error("remove item", "id", it.ID, "err", err)
		b.reply(chatID, "Não foi possível remover o item.")
		return
	}
	b.reply(chatID, fmt.Sprintf("Item «%s» removido.", it.Name))
}

func (b *Bot) handleListDebtors(chatID int64) {
	var sb strings.Builder
	for _, d := range b.deb.Debtors() {
		if d.Status != debtors.StatusOpen {
			continue
		}
		fmt.Fprintf(&sb, "%s — R$ %s", d.Name, d.Amount.StringFixed(2))
		if d.DueDate != nil {
			fmt.Fprintf(&sb, " (vence %s)", debtors.DatePart(*d.DueDate))
		}
		sb.WriteString("\n")
	}
	if sb.Len() == 0 {
		b.reply(chatID, "Nenhum devedor em aberto.")
		return
	}
	b.reply(chatID, sb.String())
}

func (b *Bot) handleAddDebtor(ctx context.Context, chatID int64, arg string) {
	parts := fields(arg)
	if len(parts) < 2 || parts[0] == "" {
		b.reply(chatID, "Use: /devedor Nome;Valor[;Vencimento AAAA-MM-DD]")
		return
	}
	amount, err := debtors.ParseAmount(parts[1])
	if err != nil {
		b.reply(chatID, fmt.Sprintf("Valor inválido: %q", parts[1]))
		return
	}
	d := debtors.Debtor{Name: parts[0], Amount: amount}
	if len(parts) > 2 && parts[2] != "" {
		d.DueDate = &parts[2]
	}
	created, err := b.deb.AddDebtor(ctx, d)
	if err != nil {
		b.log.Error("add debtor", "err", err)
		b.reply(chatID, "Não foi possível salvar o devedor.")
		return
	}
	b.reply(chatID, fmt.Sprintf("Devedor «%s» salvo (R$ %s).", created.Name, created.Amount.StringFixed(2)))
}

func (b *Bot) handleMarkPaid(ctx context.Context, chatID int64, name string) {
	d, ok := b.findDebtor(name)
	if !ok {
		b.reply(chatID, fmt.Sprintf("Devedor «%s» não encontrado.", name))
		return
	}
	if err := b.deb.MarkAsPaid(ctx, d.ID); err != nil {
		b.log.Error("mark paid", "id", d.ID, "err", err)
		b.reply(chatID, "Não foi possível marcar como pago.")
		return
	}
	b.reply(chatID, fmt.Sprintf("«%s» marcado como pago.", d.Name))
}

func (b *Bot) handleRemoveDebtor(ctx context.Context, chatID int64, name string) {
	d, ok := b.findDebtor(name)
	if !ok {
		b.reply(chatID, fmt.Sprintf("Devedor «%s» não encontrado.", name))
		return
	}
	if err := b.deb.RemoveDebtor(ctx, d.ID); err != nil {
		b.log.Error("remove debtor", "id", d.ID, "err", err)
		b.reply(chatID, "Não foi possível remover o devedor.")
		return
	}
	b.reply(chatID, fmt.Sprintf("Devedor «%s» removido.", d.Name))
}

func (b *Bot) handleExport(chatID int64) {
	data, err := b.transfer.Export()
	if err != nil {
		b.log.Error("export", "err", err)
		b.reply(chatID, fmt.Sprintf("Erro ao exportar: %v", err))
		return
	}
	fileName := fmt.Sprintf("estoque_%s.xlsx", time.Now().Format("20060102_150405"))
	doc := tgbotapi.NewDocument(chatID, tgbotapi.FileBytes{Name: fileName, Bytes: data})
	doc.Caption = "Planilha com as abas «Devedores» e «Estoque»."
	b.send(doc)
}

func (b *Bot) handleImport(ctx context.Context, chatID int64, d *tgbotapi.Document) {
	if !strings.HasSuffix(strings.ToLower(d.FileName), ".xlsx") {
		b.reply(chatID, "Envie um arquivo .xlsx.")
		return
	}
	data, err := b.downloadTelegramFile(d.FileID)
	if err != nil {
		b.log.Error("download import file", "err", err)
		b.reply(chatID, "Não foi possível baixar o arquivo.")
		return
	}
	rep, err := b.transfer.Import(ctx, data)
	if err != nil {
		// rows already committed stay committed; report what landed
		b.reply(chatID, fmt.Sprintf("Erro ao importar: %v (importados até aqui: %d devedores, %d itens)",
			err, rep.Debtors, rep.Items))
		return
	}
	b.reply(chatID, fmt.Sprintf("Importação concluída: %d devedores, %d itens.", rep.Debtors, rep.Items))
}

func (b *Bot) handleToggleNotifications(chatID int64, arg string) {
	switch strings.ToLower(arg) {
	case "on":
		if err := b.sched.SetEnabled(true); err != nil {
			b.reply(chatID, "Não foi possível salvar a preferência.")
			return
		}
		b.reply(chatID, "Lembretes ativados.")
	case "off":
		if err := b.sched.SetEnabled(false); err != nil {
			b.reply(chatID, "Não foi possível salvar a preferência.")
			return
		}
		b.reply(chatID, "Lembretes desativados.")
	default:
		state := "desativados"
		if b.sched.Enabled() {
			state = "ativados"
		}
		b.reply(chatID, fmt.Sprintf("Lembretes %s. Use /notificacoes on|off.", state))
	}
}

func (b *Bot) handleEvaluateNow(ctx context.Context, chatID int64) {
	if err := b.sched.NotifyLowStock(ctx, b.inv.LowStock(b.threshold)); err != nil {
		b.log.Error("low stock evaluation", "err", err)
	}
	if err := b.sched.NotifyDebtors(ctx, b.deb.Debtors()); err != nil {
		b.log.Error("debtor evaluation", "err", err)
	}
	b.reply(chatID, "Verificação concluída.")
}

// downloadTelegramFile fetches an uploaded document through the Telegram API.
func (b *Bot) downloadTelegramFile(fileID string) ([]byte, error) {
	url, err := b.api.GetFileDirectURL(fileID)
	if err != nil {
		return nil, fmt.Errorf("get file url: %w", err)
	}
	resp, err := http.Get(url)
	if err != nil {
		return nil, fmt.Errorf("download file: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("telegram returned status %s", resp.Status)
	}
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read body: %w", err)
	}
	return data, nil
}
