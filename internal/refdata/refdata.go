// Package refdata loads the two reference tables: CPI inflation factors and
// CRP category codes. Both have hardcoded fallbacks so the pipeline never
// fails on reference data; files on disk refresh or extend the defaults and
// any problem reading them is logged and absorbed.
package refdata

import (
	"bufio"
	"database/sql"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/rs/zerolog"

	pkgerrors "github.com/moneytrail/moneytrail/internal/errors"
)

// DefaultCPIFactors holds CPI-U multipliers to constant 2024 dollars,
// verified against BLS CPI-U tables.
var DefaultCPIFactors = map[string]float64{
	"2004": 1.6653,
	"2008": 1.4611,
	"2012": 1.3607,
	"2020": 1.2124,
}

// LoadCPIFactors inserts the hardcoded factors, then refreshes them from
// inflationPath when it exists. File rows carry a year and dollar figures;
// the last numeric value is the 2024 equivalent of $100 in that year.
func LoadCPIFactors(db *sql.DB, inflationPath string, logger zerolog.Logger) error {
	for cycle, factor := range DefaultCPIFactors {
		if _, err := db.Exec(
			"INSERT OR REPLACE INTO cpi_factors VALUES (?, ?)", cycle, factor,
		); err != nil {
			return pkgerrors.NewStoreError(pkgerrors.CodeInsertFailed,
				"failed to insert cpi factors", err)
		}
	}

	if inflationPath != "" {
		if err := refreshCPIFromFile(db, inflationPath); err != nil {
			logger.Warn().Err(err).Str("file", inflationPath).
				Msg("could not parse inflation file, using hardcoded factors")
		} else {
			logger.Info().Str("file", inflationPath).Msg("cpi factors refreshed from file")
		}
	}

	rows, err := db.Query("SELECT Cycle, factor FROM cpi_factors ORDER BY Cycle")
	if err != nil {
		return pkgerrors.NewStoreError(pkgerrors.CodeExecFailed,
			"failed to read back cpi factors", err)
	}
	defer rows.Close()
	for rows.Next() {
		var cycle string
		var factor float64
		if err := rows.Scan(&cycle, &factor); err != nil {
			return pkgerrors.NewStoreError(pkgerrors.CodeExecFailed,
				"failed to scan cpi factors", err)
		}
		logger.Info().Str("cycle", cycle).Float64("factor", factor).Msg("cpi factor")
	}
	return rows.Err()
}

func refreshCPIFromFile(db *sql.DB, path string) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.ReplaceAll(scanner.Text(), " ", ",")
		var parts []string
		for _, p := range strings.Split(line, ",") {
			if p = strings.TrimSpace(p); p != "" {
				parts = append(parts, p)
			}
		}
		if len(parts) < 3 {
			continue
		}
		year := parts[0]
		if _, known := DefaultCPIFactors[year]; !known {
			continue
		}

		var numerics []float64
		for _, p := range parts[1:] {
			v, err := strconv.ParseFloat(strings.TrimPrefix(p, "$"), 64)
			if err == nil {
				numerics = append(numerics, v)
			}
		}
		if len(numerics) == 0 {
			continue
		}
		factor := numerics[len(numerics)-1] / 100.0
		if _, err := db.Exec(
			"INSERT OR REPLACE INTO cpi_factors VALUES (?, ?)", year, factor,
		); err != nil {
			return err
		}
	}
	return scanner.Err()
}

// LoadCategories imports CRP industry category codes from categoriesPath.
// The file ships with either tab or comma delimiters and sometimes a header
// line; both are detected. A missing file only logs a warning.
func LoadCategories(db *sql.DB, categoriesPath string, logger zerolog.Logger) error {
	f, err := os.Open(categoriesPath)
	if err != nil {
		logger.Warn().Str("file", categoriesPath).
			Msg("category codes file not found, skipping")
		return nil
	}
	defer f.Close()

	width := len(schemaCategoryColumns)
	scanner := bufio.NewScanner(f)
	var delimiter byte
	var loaded int64
	first := true

	for scanner.Scan() {
		line := scanner.Text()
		if first {
			delimiter = detectDelimiter(line)
		}

		row, ok := splitReference(line, delimiter)
		if !ok || len(row) == 0 || row[0] == "" {
			continue
		}
		if first {
			first = false
			if isCategoryHeader(row[0]) {
				continue
			}
		}

		for len(row) < width {
			row = append(row, "")
		}
		if _, err := db.Exec(
			"INSERT OR IGNORE INTO category_codes VALUES (?, ?, ?, ?, ?, ?)",
			row[0], row[1], row[2], row[3], row[4], row[5],
		); err != nil {
			return pkgerrors.NewStoreError(pkgerrors.CodeInsertFailed,
				"failed to insert category codes", err)
		}
		loaded++
	}
	if err := scanner.Err(); err != nil {
		return pkgerrors.NewReferenceError(
			fmt.Sprintf("failed reading %s", categoriesPath), err)
	}

	logger.Info().Int64("codes", loaded).Msg("category codes loaded")
	return nil
}

var schemaCategoryColumns = []string{
	"Catcode", "Catname", "Catorder", "Industry", "Sector", "SectorLong",
}

func detectDelimiter(line string) byte {
	if strings.ContainsRune(line, '\t') {
		return '\t'
	}
	return ','
}

// splitReference splits a reference line and strips residual pipe wrapping.
func splitReference(line string, delimiter byte) ([]string, bool) {
	if strings.TrimSpace(line) == "" {
		return nil, false
	}
	raw := strings.Split(line, string(delimiter))
	fields := make([]string, 0, len(raw))
	for _, p := range raw {
		fields = append(fields, strings.Trim(strings.TrimSpace(p), "|"))
	}
	return fields, true
}

// isCategoryHeader reports whether the first field looks like a header cell
// rather than a catcode (catcodes start with a letter followed by digits).
func isCategoryHeader(first string) bool {
	lower := strings.ToLower(first)
	if lower == "catcode" || lower == "cat" {
		return true
	}
	return len(first) > 0 && !isAlpha(first[0])
}

func isAlpha(c byte) bool {
	return (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z')
}
