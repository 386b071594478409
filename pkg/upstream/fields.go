package upstream

import (
	"strconv"
	"strings"
	"time"
)

// The public API has shipped several field-name dialects over the years and
// mixes them freely between endpoints. Each chain lists the names for one
// logical field in the order they are tried; extending support for a new
// dialect means appending names here, not touching the normalizer.
type fieldChain []string

var (
	idFields          = fieldChain{"id", "gtin", "codigo", "cd_prod"}
	descriptionFields = fieldChain{"desc", "descricao", "produto", "ds_item", "nm_prod"}
	priceFields       = fieldChain{"valor", "preco", "vl_item", "valor_unitario", "vl_prod"}
	nameFields        = fieldChain{"nm_fan", "nome_fantasia", "nm_emp", "razao_social", "nome"}
	taxIDFields       = fieldChain{"cnpj", "nr_cnpj", "cgc"}
	addressFields     = fieldChain{"endereco", "nm_logr", "logradouro", "end"}
	numberFields      = fieldChain{"nr_logr", "numero"}
	distanceFields    = fieldChain{"distkm", "dist", "distancia"}
	timeFields        = fieldChain{"datahora", "dthr", "data", "tempo", "atualizado_em"}
	pairFields        = fieldChain{"latlon", "coordenadas", "posicao"}
	latitudeFields    = fieldChain{"lat", "latitude", "nr_lat"}
	longitudeFields   = fieldChain{"lon", "lng", "longitude", "nr_lon"}
	geohashFields     = fieldChain{"local", "geohash"}

	categoryCodeFields = fieldChain{"codigo", "id", "cod"}
	categoryDescFields = fieldChain{"descricao", "desc", "nome"}
)

// lookup returns the first non-nil value among the chain's field names.
func (c fieldChain) lookup(m map[string]any) (any, bool) {
	for _, name := range c {
		if v, ok := m[name]; ok && v != nil {
			return v, true
		}
	}
	return nil, false
}

func (c fieldChain) str(m map[string]any) string {
	v, ok := c.lookup(m)
	if !ok {
		return ""
	}
	return asString(v)
}

func (c fieldChain) float(m map[string]any) (float64, bool) {
	v, ok := c.lookup(m)
	if !ok {
		return 0, false
	}
	return asFloat(v)
}

func (c fieldChain) time(m map[string]any) *time.Time {
	v, ok := c.lookup(m)
	if !ok {
		return nil
	}
	return asTime(v)
}

func asString(v any) string {
	switch t := v.(type) {
	case string:
		return strings.TrimSpace(t)
	case float64:
		if t == float64(int64(t)) {
			return strconv.FormatInt(int64(t), 10)
		}
		return strconv.FormatFloat(t, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(t)
	default:
		return ""
	}
}

// asFloat accepts JSON numbers and dot-decimal strings. Comma decimals
// ("12,50") fail on purpose: an unparseable price must come out as absent,
// not silently reinterpreted.
func asFloat(v any) (float64, bool) {
	switch t := v.(type) {
	case float64:
		return t, true
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(t), 64)
		if err != nil {
			return 0, false
		}
		return f, true
	default:
		return 0, false
	}
}

var timeLayouts = []string{
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"02/01/2006 15:04:05",
	"02/01/2006 15:04",
}

// asTime parses the timestamp dialects seen in upstream payloads. Numeric
// values are taken as Unix seconds.
func asTime(v any) *time.Time {
	switch t := v.(type) {
	case string:
		s := strings.TrimSpace(t)
		if s == "" {
			return nil
		}
		for _, layout := range timeLayouts {
			if parsed, err := time.Parse(layout, s); err == nil {
				return &parsed
			}
		}
		return nil
	case float64:
		if t < 1e9 {
			return nil
		}
		parsed := time.Unix(int64(t), 0).UTC()
		return &parsed
	default:
		return nil
	}
}

// flatten merges a nested establishment object into a copy of the record so
// that every chain can be resolved against a single flat map. Parent keys
// win on collision.
func flatten(raw map[string]any) map[string]any {
	nested, ok := raw["estabelecimento"].(map[string]any)
	if !ok {
		if nested, ok = raw["emp"].(map[string]any); !ok {
			return raw
		}
	}
	merged := make(map[string]any, len(raw)+len(nested))
	for k, v := range nested {
		merged[k] = v
	}
	for k, v := range raw {
		merged[k] = v
	}
	return merged
}
