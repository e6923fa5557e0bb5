package dispatcher

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/Ramsey-B/fern/pkg/commerce"
	"github.com/Ramsey-B/fern/pkg/lifecycle"
	"github.com/Ramsey-B/fern/pkg/models"
)

// orderNotFoundText is returned for both nonexistent orders and orders owned
// by another customer. The two cases are logged and audited distinctly, but
// the reply shape must not let a caller probe which one occurred.
const orderNotFoundText = "I couldn't find that order. Please double-check the order number and try again."

// lastProductSlot remembers the product a conversation last discussed so
// follow-up turns like "add it to my cart" resolve without re-stating it.
const lastProductSlot = "last_product_id"

func (d *Dispatcher) errorResult(text string) *models.TurnResult {
	return &models.TurnResult{Text: text, Payload: map[string]any{"outcome": OutcomeError}}
}

func (d *Dispatcher) infrastructureApology(ctx context.Context, err error, operation string) *models.TurnResult {
	d.logger.WithContext(ctx).WithError(err).Errorf("infrastructure failure during %s", operation)
	return d.errorResult(apologyMessage)
}

func (d *Dispatcher) searchProducts(ctx context.Context, turn *models.Turn, _ *int64) *models.TurnResult {
	query := turn.Entity("product")
	if query == "" {
		query = turn.RawText
	}

	products, err := d.backend.SearchProducts(ctx, query, 5)
	if err != nil {
		return d.infrastructureApology(ctx, err, "product search")
	}

	if len(products) == 0 {
		return &models.TurnResult{
			Text: fmt.Sprintf("I couldn't find anything matching %q. Could you try a different name?", query),
		}
	}

	var sb strings.Builder
	sb.WriteString("Here's what I found:\n")
	for _, p := range products {
		fmt.Fprintf(&sb, "- %s\n", p.Name)
	}

	return &models.TurnResult{
		Text:    sb.String(),
		Payload: map[string]any{"products": products},
	}
}

func (d *Dispatcher) productDetails(ctx context.Context, turn *models.Turn, _ *int64) *models.TurnResult {
	productID, ok := d.turnProductID(ctx, turn)
	if !ok {
		return &models.TurnResult{Text: "Which product would you like to know more about?"}
	}

	product, err := d.backend.ProductByID(ctx, productID)
	if err != nil {
		if errors.Is(err, commerce.ErrProductNotFound) {
			return &models.TurnResult{Text: "I couldn't find that product. Could you check the name or try a search?"}
		}
		return d.infrastructureApology(ctx, err, "product lookup")
	}

	d.rememberProduct(ctx, turn.ConversationID, product.ID)
	options := d.variants.Options(product)

	return &models.TurnResult{
		Text:    fmt.Sprintf("%s: %s", product.Name, product.Description),
		Payload: map[string]any{"product": product, "options": options},
	}
}

func (d *Dispatcher) checkAvailability(ctx context.Context, turn *models.Turn, _ *int64) *models.TurnResult {
	productID, ok := d.turnProductID(ctx, turn)
	if !ok {
		return &models.TurnResult{Text: "Which product would you like me to check?"}
	}

	product, err := d.backend.ProductByID(ctx, productID)
	if err != nil {
		if errors.Is(err, commerce.ErrProductNotFound) {
			return &models.TurnResult{Text: "I couldn't find that product in our catalog."}
		}
		return d.infrastructureApology(ctx, err, "availability check")
	}

	d.rememberProduct(ctx, turn.ConversationID, product.ID)
	options := d.variants.Options(product)
	inStock := 0
	for _, opt := range options {
		if opt.InStock {
			inStock++
		}
	}

	if inStock == 0 {
		return &models.TurnResult{
			Text:    fmt.Sprintf("%s is currently out of stock in every combination.", product.Name),
			Payload: map[string]any{"options": options},
		}
	}

	return &models.TurnResult{
		Text:    fmt.Sprintf("%s is available in %d color and size combinations.", product.Name, inStock),
		Payload: map[string]any{"options": options},
	}
}

// addToCart resolves the requested variant and adds it. The variant must
// resolve to exactly one id; any miss or ambiguity stops the turn with the
// actually-available combinations, never a substituted item.
func (d *Dispatcher) addToCart(ctx context.Context, turn *models.Turn, customerID *int64) *models.TurnResult {
	productID, ok := d.turnProductID(ctx, turn)
	if !ok {
		return &models.TurnResult{Text: "Which product would you like to add to your cart?"}
	}

	product, err := d.backend.ProductByID(ctx, productID)
	if err != nil {
		if errors.Is(err, commerce.ErrProductNotFound) {
			return &models.TurnResult{Text: "I couldn't find that product. Could you check the name or try a search?"}
		}
		return d.infrastructureApology(ctx, err, "product lookup")
	}

	d.rememberProduct(ctx, turn.ConversationID, product.ID)

	selection := models.VariantSelection{
		ColorText: turn.Entity("color"),
		SizeText:  turn.Entity("size"),
	}
	if colorID, ok := d.entityInt64(turn, "color_id"); ok {
		selection.ColorID = &colorID
	}
	if sizeID, ok := d.entityInt64(turn, "size_id"); ok {
		selection.SizeID = &sizeID
	}

	variantID, err := d.variants.Resolve(ctx, product, selection)
	if err != nil {
		options := d.variants.Options(product)
		return &models.TurnResult{
			Text:    variantFailureText(product.Name, options),
			Payload: map[string]any{"options": options},
		}
	}

	quantity := 1
	if q, ok := d.entityInt64(turn, "quantity"); ok && q > 0 {
		quantity = int(q)
	}

	if err := d.backend.AddToCart(ctx, *customerID, variantID, quantity); err != nil {
		return d.infrastructureApology(ctx, err, "cart add")
	}

	return &models.TurnResult{
		Text:    fmt.Sprintf("Added %s to your cart.", product.Name),
		Payload: map[string]any{"variant_id": variantID, "quantity": quantity},
	}
}

func variantFailureText(productName string, options []models.VariantOption) string {
	if len(options) == 0 {
		return fmt.Sprintf("That combination isn't available for %s, and no variants are listed right now.", productName)
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "That combination isn't available for %s. The options are:\n", productName)
	for _, opt := range options {
		stock := "in stock"
		if !opt.InStock {
			stock = "out of stock"
		}
		fmt.Fprintf(&sb, "- %s / %s (%s)\n", opt.ColorName, opt.SizeName, stock)
	}
	sb.WriteString("Which one would you like?")
	return sb.String()
}

func (d *Dispatcher) cancelOrder(ctx context.Context, turn *models.Turn, customerID *int64) *models.TurnResult {
	orderID, ok := d.entityInt64(turn, "order_id")
	if !ok {
		return &models.TurnResult{Text: "Which order would you like to cancel? Please give me the order number."}
	}

	reason := models.CancelReason(turn.Entity("cancel_reason"))
	if reason == "" {
		reason = models.ReasonOther
	}

	order, err := d.lifecycle.RequestCancellation(ctx, orderID, *customerID, reason)
	if err != nil {
		return d.cancellationFailure(ctx, turn, orderID, err)
	}

	return &models.TurnResult{
		Text:    fmt.Sprintf("Done. Order #%d has been cancelled.", order.ID),
		Payload: map[string]any{"order": order},
	}
}

// cancellationFailure maps guard errors to user-facing replies. Status
// failures relay the guard's remediation text verbatim; cancellations blocked
// at a later fulfillment stage also open a support ticket so a human can
// take over.
func (d *Dispatcher) cancellationFailure(ctx context.Context, turn *models.Turn, orderID int64, err error) *models.TurnResult {
	var statusErr *lifecycle.StatusError
	switch {
	case errors.Is(err, lifecycle.ErrOrderNotFound), errors.Is(err, lifecycle.ErrUnauthorized):
		return &models.TurnResult{Text: orderNotFoundText}
	case errors.Is(err, lifecycle.ErrInvalidReason):
		return &models.TurnResult{Text: "I didn't recognize that cancellation reason. Could you tell me why you'd like to cancel?"}
	case errors.As(err, &statusErr):
		if statusErr.Status == models.StatusCancelled {
			return &models.TurnResult{Text: "That order is already cancelled."}
		}

		text := fmt.Sprintf("I can't cancel that order anymore. %s", statusErr.Remediation)
		payload := map[string]any{"remediation": statusErr.Remediation}

		ticketID, ticketErr := d.backend.CreateSupportTicket(ctx, commerce.SupportTicket{
			Subject:       fmt.Sprintf("Order cancellation request - order #%d", orderID),
			Message:       fmt.Sprintf("Customer asked to cancel order #%d while it is %s.", orderID, statusErr.Status),
			OriginalQuery: turn.RawText,
			Source:        "cancellation_escalation",
		})
		if ticketErr != nil {
			d.logger.WithContext(ctx).WithError(ticketErr).Error("failed to escalate blocked cancellation")
			return &models.TurnResult{Text: text, Payload: payload}
		}

		payload["ticket_id"] = ticketID
		return &models.TurnResult{
			Text:    fmt.Sprintf("%s I've opened support ticket #%d so our team can help with this order.", text, ticketID),
			Payload: payload,
		}
	default:
		return d.infrastructureApology(ctx, err, "order cancellation")
	}
}

// ownedOrder fetches the order the turn names and verifies the acting
// customer owns it. A non-nil failure result ends the turn.
func (d *Dispatcher) ownedOrder(ctx context.Context, turn *models.Turn, customerID *int64) (*models.Order, *models.TurnResult) {
	orderID, ok := d.entityInt64(turn, "order_id")
	if !ok {
		return nil, &models.TurnResult{Text: "Which order is it? Please give me the order number."}
	}

	order, err := d.backend.OrderByID(ctx, orderID)
	if err != nil {
		if errors.Is(err, commerce.ErrOrderNotFound) {
			return nil, &models.TurnResult{Text: orderNotFoundText}
		}
		return nil, d.infrastructureApology(ctx, err, "order lookup")
	}

	// Same reply as not-found; the mismatch is logged for security review.
	if order.CustomerID != *customerID {
		d.logger.WithContext(ctx).WithFields(map[string]any{
			"order_id":    order.ID,
			"customer_id": *customerID,
			"owner_id":    order.CustomerID,
		}).Warn("order lookup on another customer's order")
		return nil, &models.TurnResult{Text: orderNotFoundText}
	}

	return order, nil
}

func (d *Dispatcher) trackOrder(ctx context.Context, turn *models.Turn, customerID *int64) *models.TurnResult {
	order, fail := d.ownedOrder(ctx, turn, customerID)
	if fail != nil {
		return fail
	}

	text := fmt.Sprintf("Order #%d is %s.", order.ID, order.FulfillmentStatus)
	if order.TrackingNumber != nil {
		text = fmt.Sprintf("%s Tracking number: %s.", text, *order.TrackingNumber)
	}

	return &models.TurnResult{
		Text:    text,
		Payload: map[string]any{"order": order},
	}
}

// deliveryStatus answers delivery inquiries with stage-specific guidance.
// The backend owns all dates; this handler only relays what the order shows.
func (d *Dispatcher) deliveryStatus(ctx context.Context, turn *models.Turn, customerID *int64) *models.TurnResult {
	order, fail := d.ownedOrder(ctx, turn, customerID)
	if fail != nil {
		return fail
	}

	return &models.TurnResult{
		Text:    deliveryStatusText(order),
		Payload: map[string]any{"order": order},
	}
}

func deliveryStatusText(order *models.Order) string {
	switch order.FulfillmentStatus {
	case models.StatusPending:
		return fmt.Sprintf("Order #%d is pending confirmation and hasn't shipped yet. Once it ships we'll have an estimated delivery date for you.", order.ID)
	case models.StatusConfirmed:
		return fmt.Sprintf("Order #%d is confirmed and being prepared for shipment. Standard delivery usually takes 1-2 business days in major cities and 3-5 business days elsewhere.", order.ID)
	case models.StatusShipping:
		text := fmt.Sprintf("Order #%d is on the way!", order.ID)
		if order.TrackingNumber != nil {
			text = fmt.Sprintf("%s You can track the package with number %s.", text, *order.TrackingNumber)
		}
		return text
	case models.StatusDelivered:
		return fmt.Sprintf("Order #%d has been delivered. If it hasn't arrived or something looks wrong, let me know and I'll connect you with our support team.", order.ID)
	case models.StatusCancelled:
		return fmt.Sprintf("Order #%d has been cancelled. If you have questions about the cancellation, our support team can help.", order.ID)
	default:
		return fmt.Sprintf("Order #%d is %s. For details, please contact our support team.", order.ID, order.FulfillmentStatus)
	}
}

func (d *Dispatcher) myOrders(ctx context.Context, turn *models.Turn, customerID *int64) *models.TurnResult {
	orders, err := d.backend.OrdersByCustomer(ctx, *customerID, 10)
	if err != nil {
		return d.infrastructureApology(ctx, err, "order listing")
	}

	if len(orders) == 0 {
		return &models.TurnResult{Text: "You don't have any orders yet."}
	}

	var sb strings.Builder
	sb.WriteString("Here are your recent orders:\n")
	for _, o := range orders {
		fmt.Fprintf(&sb, "- Order #%d: %s\n", o.ID, o.FulfillmentStatus)
	}

	return &models.TurnResult{
		Text:    sb.String(),
		Payload: map[string]any{"orders": orders},
	}
}

func (d *Dispatcher) pageHandler(slug string) func(ctx context.Context, turn *models.Turn, customerID *int64) *models.TurnResult {
	return func(ctx context.Context, turn *models.Turn, _ *int64) *models.TurnResult {
		content, err := d.backend.PageContent(ctx, slug)
		if err != nil {
			return d.infrastructureApology(ctx, err, "page content lookup")
		}
		return &models.TurnResult{Text: content}
	}
}

func (d *Dispatcher) createSupportTicket(ctx context.Context, turn *models.Turn, _ *int64) *models.TurnResult {
	var history []map[string]string
	for _, entry := range d.conversationHistory(ctx, turn.ConversationID) {
		history = append(history, map[string]string{"role": entry.Role, "text": entry.Text})
	}

	ticketID, err := d.backend.CreateSupportTicket(ctx, commerce.SupportTicket{
		Subject:       "Assistant handoff request",
		Message:       fmt.Sprintf("Customer needs assistance. Original query: %s", turn.RawText),
		OriginalQuery: turn.RawText,
		History:       history,
	})
	if err != nil {
		d.logger.WithContext(ctx).WithError(err).Error("failed to create support ticket")
		return d.errorResult("I'm having trouble reaching our support team right now. Please contact us directly at support@fernstore.com.")
	}

	return &models.TurnResult{
		Text:    fmt.Sprintf("I've created support ticket #%d for you. Our team will follow up shortly.", ticketID),
		Payload: map[string]any{"ticket_id": ticketID},
	}
}

// turnProductID resolves which product the turn is about: the product_id
// entity when present, otherwise the conversation's last discussed product.
func (d *Dispatcher) turnProductID(ctx context.Context, turn *models.Turn) (int64, bool) {
	if id, ok := d.entityInt64(turn, "product_id"); ok {
		return id, true
	}
	if turn.ConversationID == "" {
		return 0, false
	}

	value, err := d.slots.Get(ctx, turn.ConversationID, lastProductSlot)
	if err != nil {
		d.logger.WithContext(ctx).WithError(err).Warn("failed to read last product slot")
		return 0, false
	}
	id, err := strconv.ParseInt(value, 10, 64)
	if err != nil {
		return 0, false
	}
	return id, true
}

func (d *Dispatcher) rememberProduct(ctx context.Context, conversationID string, productID int64) {
	if conversationID == "" {
		return
	}
	if err := d.slots.Set(ctx, conversationID, lastProductSlot, strconv.FormatInt(productID, 10)); err != nil {
		d.logger.WithContext(ctx).WithError(err).Warn("failed to write last product slot")
	}
}

func (d *Dispatcher) entityInt64(turn *models.Turn, name string) (int64, bool) {
	value := turn.Entity(name)
	if value == "" {
		return 0, false
	}
	id, err := strconv.ParseInt(strings.TrimSpace(value), 10, 64)
	if err != nil {
		return 0, false
	}
	return id, true
}
