package exchange

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/vitos/crypto_breakout_bot/internal/domain"
	"go.uber.org/zap"
)

// WS prices older than this fall back to a REST fetch.
const priceMaxAge = 10 * time.Second

// DeltaAdapter implements domain.Exchange against the Delta Exchange v2 API.
// Prices are served from the v2/ticker websocket feed when fresh, with the
// REST ticker as fallback.
type DeltaAdapter struct {
	apiKey    string
	apiSecret string
	baseURL   string
	wsURL     string
	client    *http.Client
	logger    *zap.Logger

	lastPrice float64
	priceAt   time.Time
	mu        sync.Mutex
}

func NewDeltaAdapter(apiKey, apiSecret, baseURL, wsURL string, logger *zap.Logger) *DeltaAdapter {
	return &DeltaAdapter{
		apiKey:    apiKey,
		apiSecret: apiSecret,
		baseURL:   baseURL,
		wsURL:     wsURL,
		client:    &http.Client{Timeout: 10 * time.Second},
		logger:    logger,
	}
}

// --- REST API ---

// sign builds the Delta request signature:
// HMAC-SHA256(method + timestamp + path + queryString + body).
func (d *DeltaAdapter) sign(method, timestamp, path, query, body string) string {
	toSign := method + timestamp + path + query + body
	h := hmac.New(sha256.New, []byte(d.apiSecret))
	h.Write([]byte(toSign))
	return hex.EncodeToString(h.Sum(nil))
}

type deltaError struct {
	Code    string          `json:"code"`
	Context json.RawMessage `json:"context,omitempty"`
}

func (d *DeltaAdapter) sendRequest(ctx context.Context, method, path, query string, payload interface{}) ([]byte, error) {
	var body []byte
	if payload != nil {
		jsonBody, err := json.Marshal(payload)
		if err != nil {
			return nil, err
		}
		body = jsonBody
	}

	url := d.baseURL + path
	if query != "" {
		url += "?" + query
	}

	req, err := http.NewRequestWithContext(ctx, method, url, bytes.NewBuffer(body))
	if err != nil {
		return nil, err
	}

	timestamp := strconv.FormatInt(time.Now().Unix(), 10)
	signQuery := query
	if signQuery != "" {
		signQuery = "?" + signQuery
	}
	signature := d.sign(method, timestamp, path, signQuery, string(body))

	req.Header.Set("api-key", d.apiKey)
	req.Header.Set("timestamp", timestamp)
	req.Header.Set("signature", signature)
	req.Header.Set("Content-Type", "application/json")

	resp, err := d.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}

	var envelope struct {
		Success bool            `json:"success"`
		Result  json.RawMessage `json:"result"`
		Error   *deltaError     `json:"error"`
	}
	if err := json.Unmarshal(respBody, &envelope); err != nil {
		return nil, fmt.Errorf("delta response parse error (%d): %s", resp.StatusCode, string(respBody))
	}

	if !envelope.Success {
		code := "unknown"
		if envelope.Error != nil {
			code = envelope.Error.Code
		}
		if resp.StatusCode == http.StatusBadRequest || code == "immediate_execution_not_possible" ||
			code == "insufficient_margin" || code == "order_size_exceed_available" {
			return nil, fmt.Errorf("%w: %s", domain.ErrOrderRejected, code)
		}
		return nil, fmt.Errorf("delta api error (%d): %s", resp.StatusCode, code)
	}

	return envelope.Result, nil
}

func (d *DeltaAdapter) GetCandles(ctx context.Context, symbol, resolution string, limit int) ([]domain.Candle, error) {
	frame := resolutionDuration(resolution)
	end := time.Now().Unix()
	start := end - int64(frame.Seconds())*int64(limit+1)

	query := fmt.Sprintf("resolution=%s&symbol=%s&start=%d&end=%d", resolution, symbol, start, end)
	resp, err := d.sendRequest(ctx, "GET", "/v2/history/candles", query, nil)
	if err != nil {
		return nil, err
	}

	var raw []struct {
		Time  int64   `json:"time"`
		Open  float64 `json:"open"`
		High  float64 `json:"high"`
		Low   float64 `json:"low"`
		Close float64 `json:"close"`
	}
	if err := json.Unmarshal(resp, &raw); err != nil {
		return nil, err
	}

	candles := make([]domain.Candle, 0, len(raw))
	for _, c := range raw {
		candles = append(candles, domain.Candle{
			Time:  time.Unix(c.Time, 0),
			Open:  c.Open,
			High:  c.High,
			Low:   c.Low,
			Close: c.Close,
		})
	}

	// Delta returns newest first; callers expect chronological order.
	for i, j := 0, len(candles)-1; i < j; i, j = i+1, j-1 {
		candles[i], candles[j] = candles[j], candles[i]
	}

	return candles, nil
}

func (d *DeltaAdapter) GetCurrentPrice(ctx context.Context, symbol string) (float64, error) {
	d.mu.Lock()
	if d.lastPrice > 0 && time.Since(d.priceAt) < priceMaxAge {
		price := d.lastPrice
		d.mu.Unlock()
		return price, nil
	}
	d.mu.Unlock()

	resp, err := d.sendRequest(ctx, "GET", "/v2/tickers/"+symbol, "", nil)
	if err != nil {
		return 0, err
	}

	var ticker struct {
		MarkPrice string  `json:"mark_price"`
		SpotPrice string  `json:"spot_price"`
		Close     float64 `json:"close"`
	}
	if err := json.Unmarshal(resp, &ticker); err != nil {
		return 0, err
	}

	if price, err := strconv.ParseFloat(ticker.MarkPrice, 64); err == nil && price > 0 {
		return price, nil
	}
	if ticker.Close > 0 {
		return ticker.Close, nil
	}
	return 0, fmt.Errorf("no price available for %s", symbol)
}

type deltaOrder struct {
	ID               int64   `json:"id"`
	ProductID        int     `json:"product_id"`
	Side             string  `json:"side"`
	Size             float64 `json:"size"`
	UnfilledSize     float64 `json:"unfilled_size"`
	LimitPrice       string  `json:"limit_price"`
	StopPrice        string  `json:"stop_price"`
	State            string  `json:"state"`
	AverageFillPrice string  `json:"average_fill_price"`
}

func (o *deltaOrder) toDomain() domain.PendingOrder {
	limit, _ := strconv.ParseFloat(o.LimitPrice, 64)
	stop, _ := strconv.ParseFloat(o.StopPrice, 64)
	fill, _ := strconv.ParseFloat(o.AverageFillPrice, 64)

	side := domain.SideLong
	if o.Side == "sell" {
		side = domain.SideShort
	}

	status := domain.OrderOpen
	switch o.State {
	case "closed":
		status = domain.OrderFilled
	case "cancelled":
		status = domain.OrderCancelled
	}

	return domain.PendingOrder{
		ID:        strconv.FormatInt(o.ID, 10),
		Side:      side,
		Size:      o.Size,
		Price:     limit,
		StopPrice: stop,
		Status:    status,
		FillPrice: fill,
	}
}

func sideString(side domain.Side) string {
	if side == domain.SideShort {
		return "sell"
	}
	return "buy"
}

func (d *DeltaAdapter) PlaceStopOrder(ctx context.Context, productID int, symbol string, side domain.Side, size, triggerPrice float64) (string, error) {
	payload := map[string]interface{}{
		"product_id":          productID,
		"side":                sideString(side),
		"size":                int(size),
		"order_type":          "market_order",
		"stop_order_type":     "stop_loss_order",
		"stop_price":          formatPrice(triggerPrice),
		"stop_trigger_method": "mark_price",
	}

	resp, err := d.sendRequest(ctx, "POST", "/v2/orders", "", payload)
	if err != nil {
		return "", err
	}

	var order deltaOrder
	if err := json.Unmarshal(resp, &order); err != nil {
		return "", err
	}
	return strconv.FormatInt(order.ID, 10), nil
}

func (d *DeltaAdapter) PlaceLimitOrder(ctx context.Context, productID int, symbol string, side domain.Side, size, price float64) (string, error) {
	payload := map[string]interface{}{
		"product_id":  productID,
		"side":        sideString(side),
		"size":        int(size),
		"order_type":  "limit_order",
		"limit_price": formatPrice(price),
	}

	resp, err := d.sendRequest(ctx, "POST", "/v2/orders", "", payload)
	if err != nil {
		return "", err
	}

	var order deltaOrder
	if err := json.Unmarshal(resp, &order); err != nil {
		return "", err
	}
	return strconv.FormatInt(order.ID, 10), nil
}

// EditOrder moves an order's price. Stop orders get their trigger moved,
// limit orders their limit price.
func (d *DeltaAdapter) EditOrder(ctx context.Context, productID int, orderID string, newPrice float64) error {
	id, err := strconv.ParseInt(orderID, 10, 64)
	if err != nil {
		return fmt.Errorf("invalid order id %q: %w", orderID, err)
	}

	current, err := d.GetOrder(ctx, productID, orderID)
	if err != nil {
		return err
	}

	payload := map[string]interface{}{
		"id":         id,
		"product_id": productID,
	}
	if current.IsStop() {
		payload["stop_price"] = formatPrice(newPrice)
	} else {
		payload["limit_price"] = formatPrice(newPrice)
	}

	_, err = d.sendRequest(ctx, "PUT", "/v2/orders", "", payload)
	return err
}

func (d *DeltaAdapter) CancelOrder(ctx context.Context, productID int, orderID string) error {
	id, err := strconv.ParseInt(orderID, 10, 64)
	if err != nil {
		return fmt.Errorf("invalid order id %q: %w", orderID, err)
	}

	payload := map[string]interface{}{
		"id":         id,
		"product_id": productID,
	}
	_, err = d.sendRequest(ctx, "DELETE", "/v2/orders", "", payload)
	return err
}

func (d *DeltaAdapter) CancelAllOrders(ctx context.Context, productID int) error {
	payload := map[string]interface{}{
		"product_id":          productID,
		"cancel_limit_orders": true,
		"cancel_stop_orders":  true,
	}
	_, err := d.sendRequest(ctx, "DELETE", "/v2/orders/all", "", payload)
	return err
}

func (d *DeltaAdapter) GetOrder(ctx context.Context, productID int, orderID string) (*domain.PendingOrder, error) {
	resp, err := d.sendRequest(ctx, "GET", "/v2/orders/"+orderID, "", nil)
	if err != nil {
		return nil, err
	}

	var order deltaOrder
	if err := json.Unmarshal(resp, &order); err != nil {
		return nil, err
	}
	o := order.toDomain()
	return &o, nil
}

func (d *DeltaAdapter) GetOpenOrders(ctx context.Context, productID int) ([]domain.PendingOrder, error) {
	query := fmt.Sprintf("product_ids=%d&states=open,pending", productID)
	resp, err := d.sendRequest(ctx, "GET", "/v2/orders", query, nil)
	if err != nil {
		return nil, err
	}

	var raw []deltaOrder
	if err := json.Unmarshal(resp, &raw); err != nil {
		return nil, err
	}

	orders := make([]domain.PendingOrder, 0, len(raw))
	for i := range raw {
		orders = append(orders, raw[i].toDomain())
	}
	return orders, nil
}

// GetPosition returns nil when the product has no open position.
func (d *DeltaAdapter) GetPosition(ctx context.Context, productID int) (*domain.Position, error) {
	query := fmt.Sprintf("product_id=%d", productID)
	resp, err := d.sendRequest(ctx, "GET", "/v2/positions", query, nil)
	if err != nil {
		return nil, err
	}

	var raw struct {
		Size       float64 `json:"size"`
		EntryPrice string  `json:"entry_price"`
	}
	if err := json.Unmarshal(resp, &raw); err != nil {
		return nil, err
	}

	if raw.Size == 0 {
		return nil, nil
	}

	entry, _ := strconv.ParseFloat(raw.EntryPrice, 64)
	side := domain.SideLong
	size := raw.Size
	if size < 0 {
		side = domain.SideShort
		size = -size
	}

	return &domain.Position{
		ProductID:  productID,
		Side:       side,
		Size:       size,
		EntryPrice: entry,
	}, nil
}

// --- WebSocket price feed ---

// StartPriceFeed subscribes to the v2/ticker channel and keeps the mark
// price cache warm. Reconnects with a flat backoff until ctx is cancelled.
func (d *DeltaAdapter) StartPriceFeed(ctx context.Context, symbol string) {
	go func() {
		for {
			if err := d.runFeed(ctx, symbol); err != nil {
				d.logger.Warn("Price feed disconnected", zap.Error(err))
			}
			select {
			case <-ctx.Done():
				return
			case <-time.After(5 * time.Second):
			}
		}
	}()
}

func (d *DeltaAdapter) runFeed(ctx context.Context, symbol string) error {
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, d.wsURL, nil)
	if err != nil {
		return err
	}
	defer conn.Close()

	sub := map[string]interface{}{
		"type": "subscribe",
		"payload": map[string]interface{}{
			"channels": []map[string]interface{}{
				{"name": "v2/ticker", "symbols": []string{symbol}},
			},
		},
	}
	if err := conn.WriteJSON(sub); err != nil {
		return err
	}

	d.logger.Info("Price feed connected", zap.String("symbol", symbol))

	go func() {
		<-ctx.Done()
		conn.Close()
	}()

	for {
		var event struct {
			Type      string `json:"type"`
			Symbol    string `json:"symbol"`
			MarkPrice string `json:"mark_price"`
			Close     string `json:"close"`
		}
		if err := conn.ReadJSON(&event); err != nil {
			return err
		}
		if event.Type != "v2/ticker" || event.Symbol != symbol {
			continue
		}

		priceStr := event.MarkPrice
		if priceStr == "" {
			priceStr = event.Close
		}
		price, err := strconv.ParseFloat(priceStr, 64)
		if err != nil || price <= 0 {
			continue
		}

		d.mu.Lock()
		d.lastPrice = price
		d.priceAt = time.Now()
		d.mu.Unlock()
	}
}

// formatPrice renders a price the way the API expects, without exponent
// notation and without a trailing mantissa.
func formatPrice(p float64) string {
	return strconv.FormatFloat(p, 'f', -1, 64)
}

func resolutionDuration(resolution string) time.Duration {
	n := resolution[:len(resolution)-1]
	unit := resolution[len(resolution)-1:]
	v, err := strconv.Atoi(n)
	if err != nil {
		return 4 * time.Hour
	}
	switch strings.ToLower(unit) {
	case "m":
		return time.Duration(v) * time.Minute
	case "h":
		return time.Duration(v) * time.Hour
	case "d":
		return time.Duration(v) * 24 * time.Hour
	case "w":
		return time.Duration(v) * 7 * 24 * time.Hour
	default:
		return 4 * time.Hour
	}
}
