package derive

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
)

// Dates in the bulk files are MM/DD/YYYY; SQLite date functions need
// YYYY-MM-DD. The conversion is done inline with substr.
const (
	isoDateExpr = "substr(Date, 7, 4) || '-' || substr(Date, 1, 2) || '-' || substr(Date, 4, 2)"
	yearExpr    = "substr(Date, 7, 4)"
	monthExpr   = "substr(Date, 1, 2)"
)

var weekExpr = fmt.Sprintf("strftime('%%Y-%%W', %s)", isoDateExpr)

// citizensUnitedYear splits cycles into eras: cycles before the 2010
// Citizens United ruling are pre_CU, later ones post_CU.
const citizensUnitedYear = 2010

// partisanCasePACs classifies a PAC transaction by recipient party and FEC
// transaction type. Contributions and expenditures FOR a candidate support
// that party; independent expenditures AGAINST a candidate (24A/24N) support
// the opposing party. Expects candidate alias c and transaction alias p.
const partisanCasePACs = `CASE
            WHEN c.Party = 'R' AND p.Type IN ('24E','24C','24F','24K','24Z') THEN 'pro_R'
            WHEN c.Party = 'D' AND p.Type IN ('24E','24C','24F','24K','24Z') THEN 'pro_D'
            WHEN c.Party = 'D' AND p.Type IN ('24A','24N') THEN 'pro_R'
            WHEN c.Party = 'R' AND p.Type IN ('24A','24N') THEN 'pro_D'
            ELSE 'unaligned'
        END`

// partisanCaseParty maps a recipient party straight to a direction, for
// flows with no against-spending semantics.
const partisanCaseParty = `CASE c.Party
            WHEN 'R' THEN 'pro_R'
            WHEN 'D' THEN 'pro_D'
            ELSE 'unaligned'
        END`

// partisanCaseViewPt maps a 527 committee's ideological viewpoint code.
const partisanCaseViewPt = `CASE cv.ViewPt
            WHEN 'C' THEN 'pro_R'
            WHEN 'L' THEN 'pro_D'
            ELSE 'unaligned'
        END`

// eraCaseExpr builds the cycle-to-era CASE over the configured cycles.
// Cycles that fail to parse as years are left out and classify as NULL.
func eraCaseExpr(col string, cycles []string) string {
	var b strings.Builder
	b.WriteString("CASE " + col)
	for _, cycle := range sortedCycles(cycles) {
		year, err := strconv.Atoi(cycle)
		if err != nil {
			continue
		}
		era := "post_CU"
		if year < citizensUnitedYear {
			era = "pre_CU"
		}
		fmt.Fprintf(&b, " WHEN '%s' THEN '%s'", cycle, era)
	}
	b.WriteString(" END")
	return b.String()
}

// cycleFromQuarterExpr maps a 527 quarter tag (Q[1-4][YY], e.g. Q408) to an
// election cycle. Each configured cycle claims its own year and the year
// before it; everything else maps to NULL and is filtered out.
func cycleFromQuarterExpr(cycles []string) string {
	var b strings.Builder
	b.WriteString("CASE CAST('20' || substr(QuarterYr, 3, 2) AS INTEGER)")
	for _, cycle := range sortedCycles(cycles) {
		year, err := strconv.Atoi(cycle)
		if err != nil {
			continue
		}
		fmt.Fprintf(&b, " WHEN %d THEN '%s'", year-1, cycle)
		fmt.Fprintf(&b, " WHEN %d THEN '%s'", year, cycle)
	}
	b.WriteString(" ELSE NULL END")
	return b.String()
}

func sortedCycles(cycles []string) []string {
	out := append([]string(nil), cycles...)
	sort.Strings(out)
	return out
}

// realAmount casts a raw text amount to REAL, turning the empty string into
// NULL rather than zero so unparseable amounts drop out of SUMs.
func realAmount(col string) string {
	return fmt.Sprintf("CAST(NULLIF(%s, '') AS REAL)", col)
}
