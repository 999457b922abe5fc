// Package flow models the per-user trade conversation as a tagged union.
// Each step is its own type carrying exactly the fields that step needs,
// so a half-filled flow cannot be stored.
package flow

import (
	"errors"
	"fmt"
	"math"
	"strings"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

type Kind string

const (
	KindLong     Kind = "long"
	KindShort    Kind = "short"
	KindDeposit  Kind = "deposit"
	KindTransfer Kind = "transfer"
	KindBrowse   Kind = "browse-markets"
)

// IsTrade reports whether the kind opens a futures position.
func (k Kind) IsTrade() bool { return k == KindLong || k == KindShort }

type Step string

const (
	StepSelectAsset   Step = "select_asset"
	StepEnterSize     Step = "enter_size"
	StepEnterLeverage Step = "enter_leverage"
	StepConfirm       Step = "confirm"
	StepEnterAmount   Step = "enter_amount"
)

var (
	ErrInvalidSize     = errors.New("size must be a positive number")
	ErrInvalidLeverage = errors.New("leverage is not one of the offered options")
	ErrUnknownAsset    = errors.New("asset is not in the market list")
	ErrWrongKind       = errors.New("step does not apply to this flow")
)

// Header identifies one run of a flow. ID changes every time a flow is
// started, so work begun under an old flow can detect it was superseded.
type Header struct {
	ID   string `json:"id"`
	Kind Kind   `json:"kind"`
}

// State is one step of a flow. Only the types in this package implement it.
type State interface {
	Step() Step
	Head() Header
	isState()
}

type SelectAsset struct {
	Header
	Page    int      `json:"page"`
	Markets []string `json:"markets"`
}

type EnterSize struct {
	Header
	Asset string `json:"asset"`
}

type EnterLeverage struct {
	Header
	Asset       string          `json:"asset"`
	Size        decimal.Decimal `json:"size"`
	MaxLeverage int             `json:"maxLeverage"`
	Options     []int           `json:"options"`
}

type Confirm struct {
	Header
	Asset    string          `json:"asset"`
	Size     decimal.Decimal `json:"size"`
	Leverage int             `json:"leverage"`
}

// EnterAmount waits for the amount of a deposit or transfer.
type EnterAmount struct {
	Header
	Asset string `json:"asset"`
}

func (SelectAsset) Step() Step   { return StepSelectAsset }
func (EnterSize) Step() Step     { return StepEnterSize }
func (EnterLeverage) Step() Step { return StepEnterLeverage }
func (Confirm) Step() Step       { return StepConfirm }
func (EnterAmount) Step() Step   { return StepEnterAmount }

func (s SelectAsset) Head() Header   { return s.Header }
func (s EnterSize) Head() Header     { return s.Header }
func (s EnterLeverage) Head() Header { return s.Header }
func (s Confirm) Head() Header       { return s.Header }
func (s EnterAmount) Head() Header   { return s.Header }

func (SelectAsset) isState()   {}
func (EnterSize) isState()     {}
func (EnterLeverage) isState() {}
func (Confirm) isState()       {}
func (EnterAmount) isState()   {}

func newHeader(kind Kind) Header {
	return Header{ID: uuid.NewString(), Kind: kind}
}

// StartSelect opens a trade or browse flow on the first market page.
func StartSelect(kind Kind, markets []string) (SelectAsset, error) {
	if !kind.IsTrade() && kind != KindBrowse {
		return SelectAsset{}, ErrWrongKind
	}
	return SelectAsset{Header: newHeader(kind), Markets: markets}, nil
}

// StartAmount opens a deposit or transfer flow.
func StartAmount(kind Kind, asset string) (EnterAmount, error) {
	if kind != KindDeposit && kind != KindTransfer {
		return EnterAmount{}, ErrWrongKind
	}
	return EnterAmount{Header: newHeader(kind), Asset: asset}, nil
}

// Pages returns the number of pages for the cached markets.
func (s SelectAsset) Pages(perPage int) int {
	if perPage <= 0 || len(s.Markets) == 0 {
		return 1
	}
	return (len(s.Markets) + perPage - 1) / perPage
}

// PageItems returns the markets shown on the current page.
func (s SelectAsset) PageItems(perPage int) []string {
	if perPage <= 0 {
		return nil
	}
	start := s.Page * perPage
	if start >= len(s.Markets) {
		return nil
	}
	end := start + perPage
	if end > len(s.Markets) {
		end = len(s.Markets)
	}
	return s.Markets[start:end]
}

// Turn moves to page, clamped to the available range.
func (s SelectAsset) Turn(page, perPage int) SelectAsset {
	last := s.Pages(perPage) - 1
	if page < 0 {
		page = 0
	}
	if page > last {
		page = last
	}
	s.Page = page
	return s
}

// Choose picks an asset for a trade flow.
func (s SelectAsset) Choose(symbol string) (EnterSize, error) {
	if !s.Kind.IsTrade() {
		return EnterSize{}, ErrWrongKind
	}
	if !s.Has(symbol) {
		return EnterSize{}, ErrUnknownAsset
	}
	return EnterSize{Header: s.Header, Asset: symbol}, nil
}

// Has reports whether symbol is in the cached market list. An empty
// cache accepts any symbol.
func (s SelectAsset) Has(symbol string) bool {
	if len(s.Markets) == 0 {
		return symbol != ""
	}
	for _, m := range s.Markets {
		if m == symbol {
			return true
		}
	}
	return false
}

// WithSize parses the user's free-text size and moves to leverage
// selection. options must come from LeverageOptions.
func (s EnterSize) WithSize(text string, maxLeverage int, options []int) (EnterLeverage, error) {
	size, err := ParseAmount(text, SizeUnit)
	if err != nil {
		return EnterLeverage{}, err
	}
	return EnterLeverage{
		Header:      s.Header,
		Asset:       s.Asset,
		Size:        size,
		MaxLeverage: maxLeverage,
		Options:     options,
	}, nil
}

// Pick selects one of the offered leverage values.
func (s EnterLeverage) Pick(leverage int) (Confirm, error) {
	for _, o := range s.Options {
		if o == leverage {
			return Confirm{Header: s.Header, Asset: s.Asset, Size: s.Size, Leverage: leverage}, nil
		}
	}
	return Confirm{}, ErrInvalidLeverage
}

// SizeUnit is the currency trade sizes are entered in.
const SizeUnit = "USDT"

// ParseAmount accepts a positive finite decimal, optionally followed by
// one of units, e.g. "50 USDT".
func ParseAmount(text string, units ...string) (decimal.Decimal, error) {
	fields := strings.Fields(text)
	if len(fields) == 0 || len(fields) > 2 {
		return decimal.Zero, ErrInvalidSize
	}
	if len(fields) == 2 && !knownUnit(fields[1], units) {
		return decimal.Zero, ErrInvalidSize
	}
	raw := strings.ReplaceAll(fields[0], ",", "")
	d, err := decimal.NewFromString(raw)
	if err != nil {
		return decimal.Zero, ErrInvalidSize
	}
	if f, _ := d.Float64(); math.IsInf(f, 0) || math.IsNaN(f) {
		return decimal.Zero, ErrInvalidSize
	}
	if !d.IsPositive() {
		return decimal.Zero, ErrInvalidSize
	}
	return d, nil
}

func knownUnit(field string, units []string) bool {
	for _, u := range units {
		if u != "" && strings.EqualFold(field, u) {
			return true
		}
	}
	return false
}

// LeverageOptions returns the steps not above max. When max is below every
// step the only option is max itself.
func LeverageOptions(steps []int, max int) []int {
	if max <= 0 {
		return nil
	}
	var out []int
	for _, s := range steps {
		if s <= max {
			out = append(out, s)
		}
	}
	if len(out) == 0 {
		out = []int{max}
	}
	return out
}

// Same reports whether b is still the flow run and step that a was taken
// from.
func Same(a, b State) bool {
	if a == nil || b == nil {
		return false
	}
	return a.Head().ID == b.Head().ID && a.Step() == b.Step()
}

// Describe is a short log-friendly summary without user data.
func Describe(s State) string {
	if s == nil {
		return "idle"
	}
	return fmt.Sprintf("%s/%s", s.Head().Kind, s.Step())
}
