package metals

import "strings"

// Descriptor pairs a display name with the stable commodity code used as the
// join key across snapshots, rollups, and alerts.
type Descriptor struct {
	Name string
	Code string
}

// List is the fixed set of tracked metals, in display order.
var List = []Descriptor{
	{Name: "Gold", Code: "XAU"},
	{Name: "Silver", Code: "XAG"},
	{Name: "Platinum", Code: "XPT"},
	{Name: "Palladium", Code: "XPD"},
	{Name: "Copper", Code: "XCU"},
	{Name: "Aluminum", Code: "ALU"},
	{Name: "Nickel", Code: "NI"},
	{Name: "Zinc", Code: "ZNC"},
	{Name: "Tin", Code: "TIN"},
	{Name: "Lead", Code: "LEAD"},
	{Name: "Iron Ore", Code: "FE"},
	{Name: "Steel (Scrap)", Code: "STEEL"},
	{Name: "Cobalt", Code: "CO"},
}

// symbolMap translates source futures symbols to commodity codes. Symbols the
// source lists beyond this table are not tracked and are dropped upstream.
var symbolMap = map[string]string{
	"GC.F": "XAU",
	"SI.F": "XAG",
	"PL.F": "XPT",
	"PA.F": "XPD",
	"HG.F": "XCU",
	"Q8.F": "ALU",
	"Q0.F": "NI",
	"O0.F": "ZNC",
	"S4.F": "TIN",
	"R0.F": "LEAD",
	"TR.F": "FE",
	"C-.F": "STEEL",
	"U8.F": "CO",
}

// Translate maps a source instrument symbol to its commodity code.
func Translate(symbol string) (string, bool) {
	code, ok := symbolMap[strings.ToUpper(symbol)]
	return code, ok
}

// Codes returns the stable commodity codes in display order.
func Codes() []string {
	codes := make([]string, 0, len(List))
	for _, item := range List {
		codes = append(codes, item.Code)
	}
	return codes
}
