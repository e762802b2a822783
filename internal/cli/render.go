package cli

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/dustin/go-humanize"

	"meal-plan-coordinator/internal/run"
)

var (
	titleStyle   = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("12"))
	headingStyle = lipgloss.NewStyle().Bold(true).Underline(true)
	mutedStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("8"))
	warnStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("11"))
)

func money(v float64) string {
	return humanize.FormatFloat("#,###.##", v)
}

// RenderArtifact formats a finished run for the terminal.
func RenderArtifact(a *run.Artifact) string {
	var b strings.Builder

	t := a.Targets
	b.WriteString(titleStyle.Render("Daily targets") + "\n")
	fmt.Fprintf(&b, "%d kcal  P %dg  F %dg  C %dg\n", t.Calories, t.Protein, t.Fat, t.Carbs)
	b.WriteString(mutedStyle.Render("planned by "+a.Provider) + "\n\n")

	if a.MealPlan != nil {
		for _, day := range a.MealPlan.Days {
			b.WriteString(headingStyle.Render(fmt.Sprintf("Day %d", day.Day)) + "\n")
			for _, m := range day.Meals {
				fmt.Fprintf(&b, "  %s (%.0f kcal)\n", m.Name, m.Macros.Calories)
			}
		}
		b.WriteString("\n")
	}

	b.WriteString(titleStyle.Render("Shopping list") + "\n")
	category := ""
	for _, it := range a.ShoppingList.Sorted() {
		if it.Category != category {
			category = it.Category
			b.WriteString(headingStyle.Render(category) + "\n")
		}
		line := fmt.Sprintf("  %s %s %s", humanize.Ftoa(it.Quantity), it.Unit, it.Name)
		switch {
		case it.Unresolved:
			line += " " + warnStyle.Render("(not found)")
		case it.UnitMismatch:
			line += fmt.Sprintf("  %s %s", money(it.Cost), warnStyle.Render("(1 pack)"))
		default:
			line += "  " + money(it.Cost)
		}
		b.WriteString(line + "\n")
	}

	fmt.Fprintf(&b, "\nTotal: %s\n", money(a.ShoppingList.TotalCost))
	if a.FailedIngredients > 0 {
		b.WriteString(warnStyle.Render(fmt.Sprintf("%d ingredients could not be priced", a.FailedIngredients)) + "\n")
	}
	return b.String()
}
