package league

// League is a normalized competition entry. Country is nil when the
// provider does not attach one.
type League struct {
	ID      int64   `json:"id"`
	Name    string  `json:"name"`
	Country *string `json:"country"`
}
