package cds

import (
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/google/uuid"
	"github.com/spf13/cast"

	"github.com/hms/hms/internal/domain/catalog"
	"github.com/hms/hms/internal/domain/chart"
)

// Each check returns at most one alert of each type it owns; the allergy and
// interaction checks stop at the first match.

func duplicateAlerts(item *catalog.OrderableItem, existing uuid.UUID) []Alert {
	return []Alert{{
		Type: AlertDuplicateOrder,
		Message: fmt.Sprintf("Warning: An active order for '%s' already exists for this patient. (Order ID: %s)",
			item.Name, existing),
		Severity: SeverityWarning,
	}}
}

func allergyAlerts(item *catalog.OrderableItem, allergies []*chart.PatientAllergy) []Alert {
	if !item.IsMedication() {
		return nil
	}

	names := []string{strings.ToLower(item.Name)}
	if item.GenericName != nil {
		if g := strings.ToLower(strings.TrimSpace(*item.GenericName)); g != "" {
			names = append(names, g)
		}
	}

	for _, a := range allergies {
		allergen := strings.ToLower(strings.TrimSpace(a.AllergenName))
		if allergen == "" {
			continue
		}
		for _, name := range names {
			if strings.Contains(name, allergen) || strings.Contains(allergen, name) {
				return []Alert{{
					Type: AlertAllergy,
					Message: fmt.Sprintf("Critical: Patient has a documented allergy to '%s'. This order for '%s' may be unsafe.",
						a.AllergenName, item.Name),
					Severity: SeverityCritical,
				}}
			}
		}
	}
	return nil
}

func interactionAlerts(item *catalog.OrderableItem, rules []InteractionLogic, meds []*chart.PatientMedication) []Alert {
	if !item.IsMedication() || len(rules) == 0 {
		return nil
	}

	active := make([]string, 0, len(meds))
	for _, m := range meds {
		if n := strings.ToLower(strings.TrimSpace(m.MedicationName)); n != "" {
			active = append(active, n)
		}
	}
	if len(active) == 0 {
		return nil
	}

	newName := strings.ToLower(item.Name)
	for _, rule := range rules {
		for _, p := range rule.Pairs {
			if (strings.Contains(newName, p.DrugA) && anyContains(active, p.DrugB)) ||
				(strings.Contains(newName, p.DrugB) && anyContains(active, p.DrugA)) {
				return []Alert{{
					Type: AlertDrugInteraction,
					Message: fmt.Sprintf("Warning: Potential interaction between the new order '%s' and an existing medication. Please review patient's medication list.",
						item.Name),
					Severity: SeverityWarning,
				}}
			}
		}
	}
	return nil
}

func anyContains(names []string, sub string) bool {
	for _, n := range names {
		if strings.Contains(n, sub) {
			return true
		}
	}
	return false
}

// doseAlerts never fails: a dose or unit that cannot be read yields no alerts.
func doseAlerts(item *catalog.OrderableItem, details map[string]interface{}) []Alert {
	if !item.HasDoseRange() || details == nil {
		return nil
	}

	rawDose, ok := details["dose"]
	if !ok || rawDose == nil {
		return nil
	}
	dose, err := cast.ToFloat64E(rawDose)
	if err != nil || math.IsNaN(dose) || math.IsInf(dose, 0) {
		return nil
	}

	var unit string
	if rawUnit, ok := details["unit"]; ok && rawUnit != nil {
		s, isString := rawUnit.(string)
		if !isString {
			return nil
		}
		unit = strings.TrimSpace(s)
	}

	defaultUnit := ""
	if item.DefaultDoseUnit != nil {
		defaultUnit = *item.DefaultDoseUnit
	}

	var alerts []Alert
	if unit != "" && defaultUnit != "" && !strings.EqualFold(unit, defaultUnit) {
		alerts = append(alerts, Alert{
			Type: AlertDoseUnitMismatch,
			Message: fmt.Sprintf("Warning: The ordered unit '%s' does not match the default unit '%s' for %s.",
				unit, defaultUnit, item.Name),
			Severity: SeverityWarning,
		})
	}

	minDose := 0.0
	if item.MinDose != nil {
		minDose = *item.MinDose
	}
	maxDose := *item.MaxDose

	if dose < minDose || dose > maxDose {
		shownUnit := unit
		if shownUnit == "" {
			shownUnit = defaultUnit
		}
		alerts = append(alerts, Alert{
			Type: AlertDoseRange,
			Message: fmt.Sprintf("Warning: The ordered dose of %s %s is outside the recommended range of %s-%s %s for %s.",
				formatDose(dose), shownUnit, formatDose(minDose), formatDose(maxDose), defaultUnit, item.Name),
			Severity: SeverityWarning,
		})
	}
	return alerts
}

func formatDose(f float64) string {
	return strconv.FormatFloat(f, 'f', -1, 64)
}
