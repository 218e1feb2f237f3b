package priceagg

import stdjson "encoding/json"

// wireVenueAMessage is the shape published on tatooine-mos-espa-prices:
// a ladder of tier entries with prices as decimal strings and an RFC 3339
// timestamp.
type wireVenueAMessage struct {
	Timestamp string            `json:"timestamp"`
	Entries   []wireVenueAEntry `json:"entries"`
}

type wireVenueAEntry struct {
	Quantity int    `json:"quantity"`
	Buy      string `json:"buy"`
	Sell     string `json:"sell"`
}

// wireVenueBMessage is the shape published on
// batuu-black-spire-outpost-price-stream: separate buy/sell arrays keyed by
// item, with a unix-seconds timestamp. Messages for items other than BSK
// are dropped by the caller.
type wireVenueBMessage struct {
	Item string            `json:"item"`
	Time int64             `json:"time"`
	Buy  []wireVenueBLevel `json:"buy"`
	Sell []wireVenueBLevel `json:"sell"`
}

// Price is decoded as json.Number, not float64, so the decimal built from
// it carries the exact wire text rather than a binary-float approximation.
type wireVenueBLevel struct {
	Amount int            `json:"amount"`
	Price  stdjson.Number `json:"price"`
}

const venueBBeskarItem = "BSK"
