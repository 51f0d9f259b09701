package forms

import (
	"github.com/shopspring/decimal"

	"taxline/internal/domain"
)

const (
	f8889Deduction            = "13"
	f8889TaxableDistribution  = "16"
	f8889ContributionsBySelf  = "2"
	f8889EmployerContribution = "9"
)

// BuildForm8889 computes the HSA deduction and the taxable part of HSA
// distributions. Distributions are assumed to pay qualified medical expenses;
// Part III (failure to stay covered) is not computed.
func BuildForm8889(r *Run) error {
	in := r.Input
	s := r.newForm(F8889)
	s.identity("")

	limit := r.Config.HSA.SelfOnlyLimit
	if in.HSACoverage == domain.CoverageFamily {
		s.check("1_family")
		limit = r.Config.HSA.FamilyLimit
	} else {
		s.check("1_self")
	}

	// Part I
	s.put(f8889ContributionsBySelf, in.HSAContributions)
	s.put("3", limit)
	s.put("5", s.get("3").Sub(s.get("4")))
	s.put("6", s.get("5"))
	s.sum("8", "6", "7")
	s.put(f8889EmployerContribution, in.HSAEmployerContributions)
	s.sum("11", f8889EmployerContribution, "10")
	s.put("12", decimal.Max(decimal.Zero, s.get("8").Sub(s.get("11"))))
	s.put(f8889Deduction, decimal.Min(s.get(f8889ContributionsBySelf), s.get("12")))
	if s.get(f8889ContributionsBySelf).GreaterThan(s.get("12")) {
		r.Warnf("form 8889: contributions %s exceed the deductible limit %s; the excess is subject to Form 5329",
			s.get(f8889ContributionsBySelf).StringFixed(2), s.get("12").StringFixed(2))
	}

	// Part II
	s.put("14_a", in.HSADistributions)
	s.put("14_c", s.get("14_a").Sub(s.get("14_b")))
	s.put("15", s.get("14_c"))
	s.put(f8889TaxableDistribution, s.get("14_c").Sub(s.get("15")))
	return nil
}
