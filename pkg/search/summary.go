package search

import (
	"math"

	"github.com/riddle022/farmavision/pkg/registry"
	"github.com/riddle022/farmavision/pkg/upstream"
)

// NoResultsMessage is attached to responses whose result set came back
// empty. An empty set is a legitimate answer and still ships with a summary.
const NoResultsMessage = "nenhum resultado encontrado para os critérios informados"

// Summary condenses a result set for the response footer. Price statistics
// only count offers with a positive price; offers without one stay in the
// list but not in the numbers.
type Summary struct {
	Total            int      `json:"total"`
	ComPreco         int      `json:"com_preco"`
	MenorPreco       *float64 `json:"menor_preco"`
	MaiorPreco       *float64 `json:"maior_preco"`
	PrecoMedio       *float64 `json:"preco_medio"`
	Estabelecimentos int      `json:"estabelecimentos"`
}

// BuildSummary computes the summary of a normalized result list.
func BuildSummary(offers []upstream.Offer) *Summary {
	s := &Summary{Total: len(offers)}

	establishments := make(map[string]struct{})
	var sum, min, max float64
	for _, offer := range offers {
		if key := registry.NameKey(offer.Establishment.Name); key != "" {
			establishments[key] = struct{}{}
		}
		if !offer.HasPrice() {
			continue
		}
		if s.ComPreco == 0 || offer.Price < min {
			min = offer.Price
		}
		if s.ComPreco == 0 || offer.Price > max {
			max = offer.Price
		}
		sum += offer.Price
		s.ComPreco++
	}
	s.Estabelecimentos = len(establishments)

	if s.ComPreco > 0 {
		avg := round2(sum / float64(s.ComPreco))
		s.MenorPreco = &min
		s.MaiorPreco = &max
		s.PrecoMedio = &avg
	}
	return s
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
