// Package upstream talks to the public consumer price API and converts its
// loosely shaped JSON into the canonical records the rest of the pipeline
// consumes.
package upstream

import (
	"time"

	"github.com/riddle022/farmavision/pkg/geo"
)

// Establishment identifies the seller behind an offer. Coordinates is nil
// when no usable location could be recovered from the record.
type Establishment struct {
	Name        string     `json:"nome"`
	TaxID       string     `json:"cnpj,omitempty"`
	Address     string     `json:"endereco,omitempty"`
	Coordinates *geo.Point `json:"coordenadas"`
}

// Offer is the canonical form of one upstream price record, independent of
// which field-name dialect the API used. Price is 0 when the record carried
// no parseable price; such offers stay in result lists but are excluded from
// price statistics.
type Offer struct {
	ID            string        `json:"id,omitempty"`
	Description   string        `json:"descricao"`
	Price         float64       `json:"preco"`
	Establishment Establishment `json:"estabelecimento"`
	DistanceKM    *float64      `json:"distancia_km,omitempty"`
	CollectedAt   *time.Time    `json:"coletado_em,omitempty"`
	Recency       string        `json:"atualizado"`
}

// HasPrice reports whether the offer carries a usable positive price.
func (o Offer) HasPrice() bool {
	return o.Price > 0
}

// Category is one entry of the upstream category listing.
type Category struct {
	Code        string `json:"codigo"`
	Description string `json:"descricao"`
}

// Payload is the decoded body of an upstream response. The API mixes three
// list shapes across its endpoints; absent lists stay nil.
type Payload struct {
	Categorias []map[string]any `json:"categorias"`
	Produtos   []map[string]any `json:"produtos"`
	Postos     []map[string]any `json:"postos"`
	Total      int              `json:"total"`
}

// Records returns whichever result list the payload carries. An empty result
// is a valid answer, not an error.
func (p *Payload) Records() []map[string]any {
	if len(p.Produtos) > 0 {
		return p.Produtos
	}
	if len(p.Postos) > 0 {
		return p.Postos
	}
	return nil
}
