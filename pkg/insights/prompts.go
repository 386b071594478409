package insights

import (
	"fmt"
	"strings"

	"github.com/riddle022/farmavision/pkg/dashboard"
)

// SystemPrompt frames the model as a pricing consultant for Brazilian
// pharmacies. Responses come back in Portuguese because that is what the
// dashboard renders.
const SystemPrompt = `Você é um consultor de precificação para farmácias brasileiras.

Seu papel é:
- Analisar os preços dos concorrentes próximos e compará-los com os preços do lojista
- Apontar produtos em que o lojista está perdendo competitividade
- Identificar concorrentes agressivos e padrões de reajuste
- Sugerir ações de precificação concretas

Ao responder:
1. Seja direto e prático, sem introduções longas
2. Cite números específicos dos dados fornecidos
3. Priorize as recomendações de maior impacto
4. Termine com no máximo 3 ações recomendadas
5. Responda sempre em português`

// MarketPrompt renders the dashboard summary as the user message for one
// generation.
func MarketPrompt(summary *dashboard.Summary) string {
	var b strings.Builder

	fmt.Fprintf(&b, `Analise a situação competitiva desta farmácia nos últimos dias.

Indicadores:
- Produtos cadastrados: %d (%d com preço próprio)
- Concorrentes conhecidos: %d
- Observações de preço recentes: %d
`, summary.KPIs.Products, summary.KPIs.PricedProducts, summary.KPIs.Competitors, summary.KPIs.RecentObservations)

	if len(summary.TopVolatile) > 0 {
		b.WriteString("\nProdutos com maior variação de preço:\n")
		for _, product := range summary.TopVolatile {
			fmt.Fprintf(&b, "- %s: variação %.1f%%", product.Name, product.Volatility)
			if product.Lowest != nil && product.Highest != nil {
				fmt.Fprintf(&b, " (de R$ %.2f a R$ %.2f)", *product.Lowest, *product.Highest)
			}
			b.WriteString("\n")
		}
	}

	if len(summary.TopCompetitors) > 0 {
		b.WriteString("\nConcorrentes mais agressivos:\n")
		for _, competitor := range summary.TopCompetitors {
			fmt.Fprintf(&b, "- %s", competitor.Name)
			if competitor.Score != nil {
				fmt.Fprintf(&b, " (índice %.0f/100)", *competitor.Score)
			}
			b.WriteString("\n")
		}
	}

	var days []string
	for _, point := range summary.Trend {
		if point.Observations > 0 {
			days = append(days, fmt.Sprintf("%s: R$ %.2f", point.Date, point.Average))
		}
	}
	if len(days) > 0 {
		b.WriteString("\nPreço médio dos concorrentes por dia:\n")
		for _, day := range days {
			fmt.Fprintf(&b, "- %s\n", day)
		}
	}

	b.WriteString("\nEscreva uma análise curta com as oportunidades e riscos de precificação.")
	return b.String()
}
