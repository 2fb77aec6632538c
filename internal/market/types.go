package market

import (
	"math"
	"sort"
	"time"
)

// OnlineStates are the user states whose orders count as live liquidity.
var OnlineStates = map[string]bool{
	"ingame": true,
	"online": true,
}

// Order is a single resting order from the order book endpoint.
type Order struct {
	OrderType string  `json:"order_type"`
	Platinum  float64 `json:"platinum"`
	Quantity  int     `json:"quantity"`
	Visible   *bool   `json:"visible"`
	User      User    `json:"user"`
}

// User carries the order owner's presence state.
type User struct {
	Status string `json:"status"`
}

// visible treats an absent visibility flag as visible, matching upstream.
func (o Order) visible() bool {
	return o.Visible == nil || *o.Visible
}

// live reports whether the order counts toward top-of-book liquidity.
func (o Order) live(orderType string) bool {
	return o.OrderType == orderType && o.visible() && OnlineStates[o.User.Status]
}

// OrderSnapshot is one raw order book observation for one item and poll
// cycle. Uniquely keyed by (ItemURL, Platform, Timestamp); immutable once
// stored. Missing numeric fields are NaN.
type OrderSnapshot struct {
	ItemURL      string
	Platform     string
	Timestamp    time.Time
	TopBuyAvg    float64
	BuyCount     int
	TopSellAvg   float64
	SellCount    int
	WeeklyVolume float64
}

// StatsBucket is one closed statistics bucket (daily for the 90-day series,
// hourly for the 48-hour series).
type StatsBucket struct {
	Datetime  string  `json:"datetime"`
	Volume    float64 `json:"volume"`
	MinPrice  float64 `json:"min_price"`
	MaxPrice  float64 `json:"max_price"`
	AvgPrice  float64 `json:"avg_price"`
	Median    float64 `json:"median"`
	OpenPrice float64 `json:"open_price"`
}

// Statistics holds the closed-bucket series for one item.
type Statistics struct {
	Days90  []StatsBucket
	Hours48 []StatsBucket
}

// SetPart is one required component of a craftable set, as reported by the
// item detail endpoint.
type SetPart struct {
	SetURL   string
	PartURL  string
	Quantity int
}

// Snapshot reduces a raw order list to a top-of-book observation: the mean
// of the best topDepth prices per side (buy descending, sell ascending) plus
// live order counts. Sides with no live orders yield NaN averages.
func Snapshot(itemURL, platform string, ts time.Time, orders []Order, topDepth int) OrderSnapshot {
	var buys, sells []float64
	buyCount, sellCount := 0, 0

	for _, o := range orders {
		switch {
		case o.live("buy"):
			buys = append(buys, o.Platinum)
			buyCount++
		case o.live("sell"):
			sells = append(sells, o.Platinum)
			sellCount++
		}
	}

	// Best prices first: buyers pay the most, sellers ask the least
	sort.Sort(sort.Reverse(sort.Float64Slice(buys)))
	sort.Float64s(sells)

	return OrderSnapshot{
		ItemURL:      itemURL,
		Platform:     platform,
		Timestamp:    ts.UTC().Truncate(time.Second),
		TopBuyAvg:    round3(avgTop(buys, topDepth)),
		BuyCount:     buyCount,
		TopSellAvg:   round3(avgTop(sells, topDepth)),
		SellCount:    sellCount,
		WeeklyVolume: math.NaN(),
	}
}

// avgTop averages the first k values, or fewer if the list is shorter.
func avgTop(vals []float64, k int) float64 {
	if len(vals) == 0 {
		return math.NaN()
	}
	if k > len(vals) {
		k = len(vals)
	}
	sum := 0.0
	for _, v := range vals[:k] {
		sum += v
	}
	return sum / float64(k)
}

func round3(v float64) float64 {
	if math.IsNaN(v) {
		return v
	}
	return math.Round(v*1000) / 1000
}
