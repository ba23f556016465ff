package validation

import (
	"strconv"

	"cardvault/internal/vault/models"
)

// prefixRange matches numbers whose leading len(lo) digits fall in [lo, hi].
type prefixRange struct {
	lo, hi string
}

type issuer struct {
	cardType models.CardType
	prefixes []prefixRange
	minLen   int
	maxLen   int
	lengths  []int // exact lengths; overrides minLen/maxLen when set
}

// issuers lists IIN ranges per brand. Order matters only for Detect.
var issuers = []issuer{
	{
		cardType: models.CardTypeVisa,
		prefixes: []prefixRange{{"4", "4"}},
		lengths:  []int{13, 16, 19},
	},
	{
		cardType: models.CardTypeMasterCard,
		prefixes: []prefixRange{{"51", "55"}, {"2221", "2720"}},
		lengths:  []int{16},
	},
	{
		cardType: models.CardTypeAmericanExpress,
		prefixes: []prefixRange{{"34", "34"}, {"37", "37"}},
		lengths:  []int{15},
	},
	{
		cardType: models.CardTypeDiscover,
		prefixes: []prefixRange{{"6011", "6011"}, {"644", "649"}, {"65", "65"}, {"622126", "622925"}},
		minLen:   16,
		maxLen:   19,
	},
	{
		cardType: models.CardTypeDinersClub,
		prefixes: []prefixRange{{"300", "305"}, {"3095", "3095"}, {"36", "36"}, {"38", "39"}},
		minLen:   14,
		maxLen:   19,
	},
	{
		cardType: models.CardTypeJCB,
		prefixes: []prefixRange{{"3528", "3589"}},
		minLen:   16,
		maxLen:   19,
	},
}

func (i issuer) matches(number string) bool {
	if !i.lengthOK(len(number)) {
		return false
	}
	for _, p := range i.prefixes {
		if p.contains(number) {
			return true
		}
	}
	return false
}

func (i issuer) lengthOK(n int) bool {
	if len(i.lengths) > 0 {
		for _, l := range i.lengths {
			if l == n {
				return true
			}
		}
		return false
	}
	return n >= i.minLen && n <= i.maxLen
}

func (p prefixRange) contains(number string) bool {
	if len(number) < len(p.lo) {
		return false
	}
	head, err := strconv.Atoi(number[:len(p.lo)])
	if err != nil {
		return false
	}
	lo, _ := strconv.Atoi(p.lo)
	hi, _ := strconv.Atoi(p.hi)
	return head >= lo && head <= hi
}

// Detect returns the brand whose issuer ranges and lengths match number.
func Detect(number string) (models.CardType, bool) {
	for _, i := range issuers {
		if i.matches(number) {
			return i.cardType, true
		}
	}
	return "", false
}

// MatchesIssuer reports whether number is consistent with cardType.
func MatchesIssuer(cardType models.CardType, number string) bool {
	for _, i := range issuers {
		if i.cardType == cardType {
			return i.matches(number)
		}
	}
	return false
}
