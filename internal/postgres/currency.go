package postgres

import "github.com/skills-gamification/internal/domain"

// legacyLaxCredit is the name the academy database has always used
// for the general currency.
const legacyLaxCredit = "academy_points"

func storedCurrency(c domain.Currency) string {
	if c == domain.CurrencyLaxCredit {
		return legacyLaxCredit
	}
	return string(c)
}

func domainCurrency(s string) domain.Currency {
	if s == legacyLaxCredit {
		return domain.CurrencyLaxCredit
	}
	return domain.Currency(s)
}
