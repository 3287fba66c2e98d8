// Package classify assigns item subtypes, extracts entities, and scores
// items against category keyword sets.
package classify

import (
	"encoding/json"
	"regexp"
	"strings"

	"github.com/broadsheet-archive/broadsheet/internal/store"
)

// JobDetails is the structured record for JOB classifieds.
type JobDetails struct {
	SalaryMin       string   `json:"salary_min,omitempty"`
	SalaryMax       string   `json:"salary_max,omitempty"`
	Currency        string   `json:"currency,omitempty"`
	ExperienceYears int      `json:"experience_years,omitempty"`
	Sector          string   `json:"sector,omitempty"`
	Qualifications  []string `json:"qualifications,omitempty"`
}

// TenderDetails is the structured record for TENDER classifieds.
type TenderDetails struct {
	Reference      string `json:"reference,omitempty"`
	Issuer         string `json:"issuer,omitempty"`
	EstimatedValue string `json:"estimated_value,omitempty"`
	Deadline       string `json:"deadline,omitempty"`
	Eligibility    string `json:"eligibility,omitempty"`
}

// subtypeRule maps keyword hits to a classified subtype. Rules are checked
// in order; the first hit wins, so the more specific subtypes come first.
type subtypeRule struct {
	subtype  store.Subtype
	keywords []string
}

var subtypeRules = []subtypeRule{
	{store.SubtypeTender, []string{"tender", "request for proposal", "rfp", "bid invitation", "invitation to bid"}},
	{store.SubtypeAuction, []string{"auction", "auctioneer", "public sale", "under the hammer"}},
	{store.SubtypeJob, []string{"vacancy", "vacancies", "job", "position available", "applicants", "recruitment", "salary", "cv"}},
	{store.SubtypeProperty, []string{"to let", "to rent", "for rent", "property", "bedroom", "apartment", "acres", "plot for sale"}},
	{store.SubtypeNotice, []string{"notice", "hereby notified", "public announcement", "deceased estate", "change of name"}},
}

// Subtype derives the classified subtype from item text, defaulting to OTHER.
func Subtype(text string) store.Subtype {
	lower := strings.ToLower(text)
	for _, r := range subtypeRules {
		for _, kw := range r.keywords {
			if strings.Contains(lower, kw) {
				return r.subtype
			}
		}
	}
	return store.SubtypeOther
}

var (
	emailRe = regexp.MustCompile(`\b[a-zA-Z0-9._%+-]+@[a-zA-Z0-9.-]+\.[a-zA-Z]{2,}\b`)
	phoneRe = regexp.MustCompile(`(?:\+?\d{1,3}[\s.-]?)?(?:\(\d{2,4}\)[\s.-]?)?\d{3}[\s.-]?\d{3,4}[\s.-]?\d{0,4}`)
	priceRe = regexp.MustCompile(`(?:[$£€]|\b(?:USD|EUR|GBP|ZAR|KES|Ksh|R)\b)\s?[\d,]+(?:\.\d{2})?(?:\s?(?:million|m|k)\b)?`)
	dateRe  = regexp.MustCompile(`\b(?:\d{1,2}(?:st|nd|rd|th)?\s+(?:Jan|Feb|Mar|Apr|May|Jun|Jul|Aug|Sep|Oct|Nov|Dec)[a-z]*\.?,?\s+\d{4}|\d{4}-\d{2}-\d{2}|\d{1,2}/\d{1,2}/\d{2,4})\b`)
	// locationRe matches "in/at/near Placename" phrases only; no NER pass.
	locationRe = regexp.MustCompile(`\b(?:in|at|near|along)\s+([A-Z][a-z]+(?:\s[A-Z][a-z]+)?)`)

	refRe    = regexp.MustCompile(`(?i)\b(?:ref(?:erence)?|tender)\s*(?:(?:no\.?|number|#)\s*:?|:)\s*([A-Z0-9/.-]+)`)
	expRe    = regexp.MustCompile(`(?i)(\d{1,2})\+?\s*(?:years?|yrs?)(?:\s+of)?\s+experience`)
	salaryRe = regexp.MustCompile(`(?i)salary\s*(?::|of|range)?\s*((?:[$£€]|USD|EUR|GBP|ZAR|KES|Ksh|R)\s?[\d,]+(?:\.\d{2})?)(?:\s*(?:-|to)\s*((?:[$£€]|USD|EUR|GBP|ZAR|KES|Ksh|R)?\s?[\d,]+(?:\.\d{2})?))?`)
)

// ExtractEntities pulls emails, phones, prices, dates, and location mentions
// out of item text via pattern matching.
func ExtractEntities(text string) store.Entities {
	ent := store.Entities{
		Emails: dedup(emailRe.FindAllString(text, -1)),
		Prices: dedup(priceRe.FindAllString(text, -1)),
		Dates:  dedup(dateRe.FindAllString(text, -1)),
	}
	for _, p := range phoneRe.FindAllString(text, -1) {
		digits := strings.Map(keepDigit, p)
		// Phone pattern also matches bare figures; require a plausible length.
		if len(digits) >= 7 && len(digits) <= 15 {
			ent.Phones = append(ent.Phones, strings.TrimSpace(p))
		}
	}
	ent.Phones = dedup(ent.Phones)
	for _, m := range locationRe.FindAllStringSubmatch(text, -1) {
		ent.Locations = append(ent.Locations, m[1])
	}
	ent.Locations = dedup(ent.Locations)
	return ent
}

func keepDigit(r rune) rune {
	if r >= '0' && r <= '9' {
		return r
	}
	return -1
}

func dedup(in []string) []string {
	seen := make(map[string]bool, len(in))
	var out []string
	for _, s := range in {
		s = strings.TrimSpace(s)
		if s == "" || seen[s] {
			continue
		}
		seen[s] = true
		out = append(out, s)
	}
	return out
}

// StructuredData builds the subtype-specific record for JOB and TENDER
// classifieds. Other subtypes carry no structured record.
func StructuredData(subtype store.Subtype, text string, ent store.Entities) json.RawMessage {
	switch subtype {
	case store.SubtypeJob:
		return marshalOrNil(jobDetails(text, ent))
	case store.SubtypeTender:
		return marshalOrNil(tenderDetails(text, ent))
	}
	return nil
}

func jobDetails(text string, ent store.Entities) *JobDetails {
	d := &JobDetails{}
	if m := salaryRe.FindStringSubmatch(text); m != nil {
		d.SalaryMin = strings.TrimSpace(m[1])
		d.SalaryMax = strings.TrimSpace(m[2])
		d.Currency = currencyOf(m[1])
	} else if len(ent.Prices) > 0 {
		d.SalaryMin = ent.Prices[0]
		d.Currency = currencyOf(ent.Prices[0])
	}
	if m := expRe.FindStringSubmatch(text); m != nil {
		d.ExperienceYears = atoiSafe(m[1])
	}
	d.Sector = sectorOf(text)
	d.Qualifications = qualificationsOf(text)
	if d.SalaryMin == "" && d.SalaryMax == "" && d.ExperienceYears == 0 &&
		d.Sector == "" && len(d.Qualifications) == 0 {
		return nil
	}
	return d
}

func tenderDetails(text string, ent store.Entities) *TenderDetails {
	d := &TenderDetails{}
	if m := refRe.FindStringSubmatch(text); m != nil {
		d.Reference = m[1]
	}
	if len(ent.Prices) > 0 {
		d.EstimatedValue = ent.Prices[0]
	}
	if len(ent.Dates) > 0 {
		// The last date mentioned in tender copy is usually the deadline.
		d.Deadline = ent.Dates[len(ent.Dates)-1]
	}
	d.Issuer = issuerOf(text)
	d.Eligibility = eligibilityOf(text)
	if (*d == TenderDetails{}) {
		return nil
	}
	return d
}

var sectorRe = regexp.MustCompile(`(?i)\b(engineering|construction|education|health|finance|agriculture|hospitality|transport|security|retail)\b`)

// itSectorRe is case sensitive: lower-case "it" is almost always the pronoun.
var itSectorRe = regexp.MustCompile(`\bIT\b`)

func sectorOf(text string) string {
	if m := sectorRe.FindStringSubmatch(text); m != nil {
		return strings.ToLower(m[1])
	}
	if itSectorRe.MatchString(text) {
		return "it"
	}
	return ""
}

var qualificationMarkers = []string{"degree", "diploma", "certificate", "masters", "phd", "bachelor"}

func qualificationsOf(text string) []string {
	lower := strings.ToLower(text)
	var out []string
	for _, q := range qualificationMarkers {
		if strings.Contains(lower, q) {
			out = append(out, q)
		}
	}
	return out
}

var issuerRe = regexp.MustCompile(`(?i)(?:issued by|invited by|on behalf of)\s+([A-Z][\w&.,' ]{2,60}?)(?:\.|,|\n|$)`)

func issuerOf(text string) string {
	if m := issuerRe.FindStringSubmatch(text); m != nil {
		return strings.TrimSpace(m[1])
	}
	return ""
}

var eligibilityRe = regexp.MustCompile(`(?i)(?:open to|eligible|eligibility:?)\s+([^.\n]{3,120})`)

func eligibilityOf(text string) string {
	if m := eligibilityRe.FindStringSubmatch(text); m != nil {
		return strings.TrimSpace(m[1])
	}
	return ""
}

func currencyOf(s string) string {
	switch {
	case strings.Contains(s, "$") || strings.Contains(s, "USD"):
		return "USD"
	case strings.Contains(s, "£") || strings.Contains(s, "GBP"):
		return "GBP"
	case strings.Contains(s, "€") || strings.Contains(s, "EUR"):
		return "EUR"
	case strings.Contains(s, "ZAR") || strings.HasPrefix(strings.TrimSpace(s), "R"):
		return "ZAR"
	case strings.Contains(s, "KES") || strings.Contains(s, "Ksh"):
		return "KES"
	}
	return ""
}

func atoiSafe(s string) int {
	n := 0
	for _, r := range s {
		if r < '0' || r > '9' {
			return 0
		}
		n = n*10 + int(r-'0')
	}
	return n
}

func marshalOrNil(v any) json.RawMessage {
	if v == nil {
		return nil
	}
	switch t := v.(type) {
	case *JobDetails:
		if t == nil {
			return nil
		}
	case *TenderDetails:
		if t == nil {
			return nil
		}
	}
	data, err := json.Marshal(v)
	if err != nil {
		return nil
	}
	return data
}
