package forms

import (
	"fmt"
	"strings"

	"taxline/internal/domain"
)

// BuildForm8949 lists every trade on Form 8949. Trades are grouped by check
// box code; each page carries up to the configured capacity of short-term
// trades in Part I and long-term trades in Part II. One page is stored as a
// single mapping, several as a page sequence, none leaves the form absent.
func BuildForm8949(r *Run) error {
	capacity := r.Config.Forms.Form8949PageCapacity
	if capacity <= 0 {
		return fmt.Errorf("form 8949 page capacity must be positive, got %d", capacity)
	}
	trades := r.Input.Trades()

	var pages []domain.Fields
	for _, code := range domain.CoverageCodes {
		short := tradesFor(trades, domain.TermShort, code)
		long := tradesFor(trades, domain.TermLong, code)
		for start := 0; start < len(short) || start < len(long); start += capacity {
			pages = append(pages, r.form8949Page(code, chunk(short, start, capacity), chunk(long, start, capacity)))
		}
	}

	switch len(pages) {
	case 0:
	case 1:
		r.Forms[F8949] = domain.SinglePage(pages[0])
	default:
		r.Forms[F8949] = domain.Paginated(pages)
	}
	return nil
}

func tradesFor(trades []domain.TradeRecord, term domain.Term, code string) []domain.TradeRecord {
	var out []domain.TradeRecord
	for _, t := range trades {
		if t.Term == term && t.CoverageCode() == code {
			out = append(out, t)
		}
	}
	return out
}

func chunk(trades []domain.TradeRecord, start, size int) []domain.TradeRecord {
	if start >= len(trades) {
		return nil
	}
	end := start + size
	if end > len(trades) {
		end = len(trades)
	}
	return trades[start:end]
}

func (r *Run) form8949Page(code string, short, long []domain.TradeRecord) domain.Fields {
	s := r.newPage()
	s.identity("I_")
	s.identity("II_")
	lower := strings.ToLower(code)
	s.fillTrades("I", "short_"+lower, domain.TermShort, code, short)
	s.fillTrades("II", "long_"+lower, domain.TermLong, code, long)
	return s.f
}

// fillTrades writes one part of a page and adds its totals to the run-wide
// accumulators read by Schedule D.
func (s *sheet) fillTrades(part, box string, term domain.Term, code string, trades []domain.TradeRecord) {
	if len(trades) == 0 {
		return
	}
	s.check(box)
	var page TradeTotals
	for i, t := range trades {
		row := fmt.Sprintf("%s_1_%d_", part, i+1)
		s.text(row+"description", t.Description)
		s.text(row+"date_acq", t.DateAcquired)
		s.text(row+"date_sold", t.DateSold)

		line := TradeTotals{
			Proceeds:   t.Proceeds.Round(2),
			Cost:       t.Cost.Round(2),
			Adjustment: t.Adjustment().Round(2),
		}
		line.Gain = line.Proceeds.Sub(line.Cost).Add(line.Adjustment)
		s.put(row+"proceeds", line.Proceeds)
		s.put(row+"cost", line.Cost)
		if t.WashSale != nil {
			s.put(row+"adjustment", line.Adjustment)
			s.text(row+"code", t.WashSaleCode)
		}
		s.put(row+"gain", line.Gain)
		page = page.add(line)
	}
	total := part + "_2_"
	s.put(total+"proceeds", page.Proceeds)
	s.put(total+"cost", page.Cost)
	s.put(total+"adjustment", page.Adjustment)
	s.put(total+"gain", page.Gain)

	s.run.termTotals[term] = s.run.termTotals[term].add(page)
	row := scheduleDRow(term, code)
	s.run.rowTotals[row] = s.run.rowTotals[row].add(page)
}

// scheduleDRow maps a trade to its Schedule D line: boxes A/B/C feed lines
// 1b/2/3 and boxes D/E/F feed lines 8b/9/10. Long-term trades reported under
// A/B/C land on the matching Part II line, and likewise for short-term trades.
func scheduleDRow(term domain.Term, code string) string {
	basis := map[string]int{"A": 0, "D": 0, "B": 1, "E": 1, "C": 2, "F": 2}[code]
	if term == domain.TermLong {
		return []string{"8b", "9", "10"}[basis]
	}
	return []string{"1b", "2", "3"}[basis]
}
