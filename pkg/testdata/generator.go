package testdata

import (
	"context"
	"fmt"
	"math/rand"
	"time"

	"github.com/brianvoe/gofakeit/v6"
	"github.com/google/uuid"

	"github.com/riddle022/farmavision/pkg/models"
	"github.com/riddle022/farmavision/pkg/registry"
	"github.com/riddle022/farmavision/pkg/store"
)

// GeneratorConfig configures demo data generation parameters
type GeneratorConfig struct {
	UserID     uint
	Products   int
	Pharmacies int
	Days       int // trailing days of price observations
	CenterLat  float64
	CenterLon  float64
	RadiusKM   int
	OwnName    string // name of the user's own pharmacy
}

// DefaultConfig returns a demo setup centered on Curitiba
func DefaultConfig() GeneratorConfig {
	return GeneratorConfig{
		UserID:     1,
		Products:   8,
		Pharmacies: 6,
		Days:       14,
		CenterLat:  -25.4284,
		CenterLon:  -49.2733,
		RadiusKM:   10,
		OwnName:    "Farmácia Vitória",
	}
}

// Summary reports what a seeding run created
type Summary struct {
	Products     int
	Pharmacies   int
	Observations int
	ProfileID    uint
}

// Pharmacy chain name parts common in Paraná
var pharmacyNameParts = struct {
	Prefixes []string
	Names    []string
}{
	Prefixes: []string{"Farmácia", "Drogaria", "Farmácias", "Drogarias"},
	Names: []string{"São João", "Nissei", "Preço Popular", "Vale Verde", "Santa Clara",
		"Bom Jesus", "do Povo", "Avenida", "Central", "Universal", "Estrela", "Paraná"},
}

type catalogItem struct {
	Name       string
	Ingredient string
	Category   string
	BasePrice  float64
}

// Common pharmacy counter items with realistic reference prices (BRL)
var productCatalog = []catalogItem{
	{"Dipirona Sódica 500mg 10 comprimidos", "dipirona", "Analgésicos", 6.50},
	{"Paracetamol 750mg 20 comprimidos", "paracetamol", "Analgésicos", 12.90},
	{"Ibuprofeno 400mg 20 cápsulas", "ibuprofeno", "Anti-inflamatórios", 18.40},
	{"Dorflex 36 comprimidos", "dipirona + orfenadrina", "Analgésicos", 24.90},
	{"Loratadina 10mg 12 comprimidos", "loratadina", "Antialérgicos", 9.80},
	{"Omeprazol 20mg 28 cápsulas", "omeprazol", "Gastrointestinais", 15.60},
	{"Vitamina C 1g 10 comprimidos efervescentes", "ácido ascórbico", "Vitaminas", 11.20},
	{"Soro Fisiológico 0,9% 500ml", "cloreto de sódio", "Primeiros Socorros", 7.30},
	{"Protetor Solar FPS 50 120ml", "", "Dermocosméticos", 54.90},
	{"Shampoo Anticaspa 200ml", "cetoconazol", "Higiene", 32.50},
	{"Fralda Descartável G 68 unidades", "", "Infantil", 89.90},
	{"Escova Dental Macia", "", "Higiene", 8.90},
}

// GeneratePharmacyName creates a realistic Brazilian pharmacy name
func GeneratePharmacyName() string {
	prefix := pharmacyNameParts.Prefixes[rand.Intn(len(pharmacyNameParts.Prefixes))]
	name := pharmacyNameParts.Names[rand.Intn(len(pharmacyNameParts.Names))]
	return fmt.Sprintf("%s %s", prefix, name)
}

// Seed populates one tenant with products, a competitor registry, a trailing
// window of price observations and an active search profile.
func Seed(ctx context.Context, st *store.Store, cfg GeneratorConfig) (*Summary, error) {
	if cfg.Products > len(productCatalog) {
		cfg.Products = len(productCatalog)
	}
	summary := &Summary{}

	// Own catalog: priced at a small premium over the reference, a few items
	// left unpriced so dashboards show the "no price" state too.
	prods := make([]models.Product, 0, cfg.Products)
	for i := 0; i < cfg.Products; i++ {
		item := productCatalog[i]
		p := models.Product{
			UserID:           cfg.UserID,
			Name:             item.Name,
			ActiveIngredient: item.Ingredient,
			Category:         item.Category,
		}
		if rand.Float64() < 0.75 {
			price := round2(item.BasePrice * gofakeit.Float64Range(0.95, 1.12))
			p.OwnPrice = &price
		}
		if err := st.Products.Create(ctx, &p); err != nil {
			return nil, fmt.Errorf("failed to create product %q: %w", p.Name, err)
		}
		prods = append(prods, p)
	}
	summary.Products = len(prods)

	// Own pharmacy first, then competitors around the center coordinate.
	own := models.Pharmacy{
		UserID:  cfg.UserID,
		Name:    cfg.OwnName,
		NameKey: registry.NameKey(cfg.OwnName),
		IsOwn:   true,
	}
	setLocation(&own, cfg)
	if _, err := st.Pharmacies.FindOrCreate(ctx, &own); err != nil {
		return nil, fmt.Errorf("failed to create own pharmacy: %w", err)
	}
	summary.Pharmacies++

	competitors := make([]models.Pharmacy, 0, cfg.Pharmacies)
	seen := map[string]bool{registry.NameKey(cfg.OwnName): true}
	for len(competitors) < cfg.Pharmacies {
		name := GeneratePharmacyName()
		key := registry.NameKey(name)
		if seen[key] {
			continue
		}
		seen[key] = true

		ph := models.Pharmacy{
			UserID:  cfg.UserID,
			Name:    name,
			NameKey: key,
		}
		setLocation(&ph, cfg)
		created, err := st.Pharmacies.FindOrCreate(ctx, &ph)
		if err != nil {
			return nil, fmt.Errorf("failed to create pharmacy %q: %w", name, err)
		}
		competitors = append(competitors, *created)
		summary.Pharmacies++
	}

	// Price history: one run per day, each competitor keeping its own price
	// level with day-to-day noise, with occasional gaps.
	factors := make([]float64, len(competitors))
	for i := range factors {
		factors[i] = gofakeit.Float64Range(0.88, 1.15)
	}
	now := time.Now()
	for day := cfg.Days - 1; day >= 0; day-- {
		runID := uuid.New()
		collected := now.AddDate(0, 0, -day)
		for _, p := range prods {
			base := basePriceFor(p.Name)
			for i, comp := range competitors {
				if rand.Float64() < 0.15 {
					continue // not every store carries every item every day
				}
				obs := models.PriceObservation{
					UserID:      cfg.UserID,
					PharmacyID:  comp.ID,
					ProductID:   p.ID,
					Price:       round2(base * factors[i] * gofakeit.Float64Range(0.97, 1.03)),
					Available:   true,
					Source:      "seed",
					RunID:       runID,
					CollectedAt: collected,
				}
				if err := st.Observations.Insert(ctx, &obs); err != nil {
					return nil, fmt.Errorf("failed to insert observation: %w", err)
				}
				summary.Observations++
			}
		}
	}

	// Active profile covering the whole catalog.
	productIDs := make([]uint, len(prods))
	for i, p := range prods {
		productIDs[i] = p.ID
	}
	profile := models.SearchProfile{
		UserID:       cfg.UserID,
		Name:         "Minha região",
		LocationMode: models.LocationCity,
		Latitude:     cfg.CenterLat,
		Longitude:    cfg.CenterLon,
		City:         "Curitiba",
		RadiusKM:     cfg.RadiusKM,
	}
	if err := st.Profiles.Create(ctx, &profile, productIDs); err != nil {
		return nil, fmt.Errorf("failed to create search profile: %w", err)
	}
	if err := st.Profiles.Activate(ctx, cfg.UserID, profile.ID); err != nil {
		return nil, fmt.Errorf("failed to activate search profile: %w", err)
	}
	summary.ProfileID = profile.ID

	return summary, nil
}

func setLocation(ph *models.Pharmacy, cfg GeneratorConfig) {
	// ~1 degree of latitude is 111km; spread stores inside the radius
	spread := float64(cfg.RadiusKM) / 111.0
	lat := cfg.CenterLat + gofakeit.Float64Range(-spread, spread)
	lon := cfg.CenterLon + gofakeit.Float64Range(-spread, spread)
	addr := fmt.Sprintf("%s, %d - Curitiba, PR", gofakeit.Street(), rand.Intn(3000)+1)
	taxID := gofakeit.Numerify("##.###.###/0001-##")
	ph.Latitude = &lat
	ph.Longitude = &lon
	ph.Address = &addr
	ph.TaxID = &taxID
}

func basePriceFor(name string) float64 {
	for _, item := range productCatalog {
		if item.Name == name {
			return item.BasePrice
		}
	}
	return gofakeit.Float64Range(5, 60)
}

func round2(v float64) float64 {
	return float64(int(v*100+0.5)) / 100
}
