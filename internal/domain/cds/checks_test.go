package cds

import (
	"encoding/json"
	"strings"
	"testing"

	"github.com/google/uuid"

	"github.com/hms/hms/internal/domain/catalog"
	"github.com/hms/hms/internal/domain/chart"
)

func ptrF(f float64) *float64 { return &f }
func ptrS(s string) *string   { return &s }

func lisinopril() *catalog.OrderableItem {
	return &catalog.OrderableItem{
		ID:              uuid.New(),
		ItemType:        catalog.ItemMedication,
		Name:            "Lisinopril 10mg Tablet",
		GenericName:     ptrS("lisinopril"),
		IsActive:        true,
		MinDose:         ptrF(2.5),
		MaxDose:         ptrF(40),
		DefaultDoseUnit: ptrS("mg"),
	}
}

func alertTypes(alerts []Alert) []AlertType {
	out := make([]AlertType, 0, len(alerts))
	for _, a := range alerts {
		out = append(out, a.Type)
	}
	return out
}

func TestDuplicateAlerts_NamesExistingOrder(t *testing.T) {
	item := lisinopril()
	existing := uuid.New()

	alerts := duplicateAlerts(item, existing)
	if len(alerts) != 1 {
		t.Fatalf("expected 1 alert, got %d", len(alerts))
	}
	a := alerts[0]
	if a.Type != AlertDuplicateOrder || a.Severity != SeverityWarning {
		t.Errorf("unexpected alert %+v", a)
	}
	if !strings.Contains(a.Message, existing.String()) || !strings.Contains(a.Message, item.Name) {
		t.Errorf("message should name item and order: %s", a.Message)
	}
}

func TestAllergyAlerts(t *testing.T) {
	tests := []struct {
		name      string
		allergens []string
		want      bool
	}{
		{"no allergies", nil, false},
		{"allergen in name", []string{"LISINOPRIL"}, true},
		{"allergen matches generic", []string{"Lisinopril"}, true},
		{"name inside allergen", []string{"lisinopril 10mg tablet and derivatives"}, true},
		{"unrelated allergen", []string{"Penicillin"}, false},
		{"blank allergen ignored", []string{"   "}, false},
		{"first match wins", []string{"lisino", "pril"}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var allergies []*chart.PatientAllergy
			for _, n := range tt.allergens {
				allergies = append(allergies, &chart.PatientAllergy{AllergenName: n, IsActive: true})
			}
			alerts := allergyAlerts(lisinopril(), allergies)
			if !tt.want {
				if len(alerts) != 0 {
					t.Fatalf("expected no alerts, got %+v", alerts)
				}
				return
			}
			if len(alerts) != 1 {
				t.Fatalf("expected exactly 1 alert, got %d", len(alerts))
			}
			if alerts[0].Type != AlertAllergy || alerts[0].Severity != SeverityCritical {
				t.Errorf("unexpected alert %+v", alerts[0])
			}
		})
	}
}

func TestAllergyAlerts_GenericNameOnly(t *testing.T) {
	item := &catalog.OrderableItem{ItemType: catalog.ItemMedication, Name: "Coumadin 5mg", GenericName: ptrS("Warfarin")}
	alerts := allergyAlerts(item, []*chart.PatientAllergy{{AllergenName: "warfarin"}})
	if len(alerts) != 1 {
		t.Fatalf("expected generic name match, got %d alerts", len(alerts))
	}
	want := "Critical: Patient has a documented allergy to 'warfarin'. This order for 'Coumadin 5mg' may be unsafe."
	if alerts[0].Message != want {
		t.Errorf("message = %q", alerts[0].Message)
	}
}

func TestAllergyAlerts_EmptyGenericDoesNotMatchEverything(t *testing.T) {
	item := &catalog.OrderableItem{ItemType: catalog.ItemMedication, Name: "Aspirin 81mg", GenericName: ptrS("")}
	if alerts := allergyAlerts(item, []*chart.PatientAllergy{{AllergenName: "latex"}}); len(alerts) != 0 {
		t.Errorf("expected no alerts, got %+v", alerts)
	}
}

func TestAllergyAlerts_NonMedication(t *testing.T) {
	item := &catalog.OrderableItem{ItemType: catalog.ItemLabTest, Name: "Iodine uptake scan"}
	if alerts := allergyAlerts(item, []*chart.PatientAllergy{{AllergenName: "iodine"}}); len(alerts) != 0 {
		t.Errorf("lab tests are not allergy checked, got %+v", alerts)
	}
}

func interactionRule(t *testing.T, raw string) InteractionLogic {
	t.Helper()
	logic, err := DecodeLogic(RuleDrugInteraction, json.RawMessage(raw))
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	return logic.(InteractionLogic)
}

func TestInteractionAlerts(t *testing.T) {
	rule := interactionRule(t, `{"interactions": [["warfarin","aspirin"],["lisinopril","spironolactone"]]}`)
	aspirin := &catalog.OrderableItem{ItemType: catalog.ItemMedication, Name: "Aspirin 81mg"}
	warfarinMed := []*chart.PatientMedication{{MedicationName: "Warfarin 5mg", MedType: chart.MedInpatientActive, Status: chart.MedStatusActive}}

	alerts := interactionAlerts(aspirin, []InteractionLogic{rule}, warfarinMed)
	if len(alerts) != 1 {
		t.Fatalf("expected exactly 1 alert, got %d", len(alerts))
	}
	if alerts[0].Type != AlertDrugInteraction || alerts[0].Severity != SeverityWarning {
		t.Errorf("unexpected alert %+v", alerts[0])
	}

	// Symmetric: the active medication may be either side of the pair.
	warfarin := &catalog.OrderableItem{ItemType: catalog.ItemMedication, Name: "Warfarin 2mg"}
	aspirinMed := []*chart.PatientMedication{{MedicationName: "ASPIRIN 325MG"}}
	if got := interactionAlerts(warfarin, []InteractionLogic{rule}, aspirinMed); len(got) != 1 {
		t.Errorf("expected symmetric match, got %d alerts", len(got))
	}

	// Two matching rules still yield one alert.
	if got := interactionAlerts(aspirin, []InteractionLogic{rule, rule}, warfarinMed); len(got) != 1 {
		t.Errorf("expected a single alert, got %d", len(got))
	}
}

func TestInteractionAlerts_NoMatch(t *testing.T) {
	rule := interactionRule(t, `{"interactions": [["warfarin","aspirin"]]}`)
	aspirin := &catalog.OrderableItem{ItemType: catalog.ItemMedication, Name: "Aspirin 81mg"}

	if got := interactionAlerts(aspirin, []InteractionLogic{rule}, nil); len(got) != 0 {
		t.Errorf("no active meds: got %+v", got)
	}
	if got := interactionAlerts(aspirin, nil, []*chart.PatientMedication{{MedicationName: "Warfarin"}}); len(got) != 0 {
		t.Errorf("no rules: got %+v", got)
	}
	other := []*chart.PatientMedication{{MedicationName: "Metformin 500mg"}}
	if got := interactionAlerts(aspirin, []InteractionLogic{rule}, other); len(got) != 0 {
		t.Errorf("unrelated med: got %+v", got)
	}
}

func TestDoseAlerts(t *testing.T) {
	tests := []struct {
		name    string
		details map[string]interface{}
		want    []AlertType
	}{
		{"in range", map[string]interface{}{"dose": 10, "unit": "mg"}, nil},
		{"above max", map[string]interface{}{"dose": 50, "unit": "mg"}, []AlertType{AlertDoseRange}},
		{"below min", map[string]interface{}{"dose": 1.0, "unit": "mg"}, []AlertType{AlertDoseRange}},
		{"bounds inclusive", map[string]interface{}{"dose": 40.0, "unit": "mg"}, nil},
		{"unit mismatch in range", map[string]interface{}{"dose": 10, "unit": "mcg"}, []AlertType{AlertDoseUnitMismatch}},
		{"unit mismatch and range", map[string]interface{}{"dose": 500, "unit": "mcg"}, []AlertType{AlertDoseUnitMismatch, AlertDoseRange}},
		{"unit case insensitive", map[string]interface{}{"dose": 10, "unit": "MG"}, nil},
		{"string dose", map[string]interface{}{"dose": "50", "unit": "mg"}, []AlertType{AlertDoseRange}},
		{"json number dose", map[string]interface{}{"dose": json.Number("50")}, []AlertType{AlertDoseRange}},
		{"missing unit uses default", map[string]interface{}{"dose": 50}, []AlertType{AlertDoseRange}},
		{"empty unit", map[string]interface{}{"dose": 10, "unit": ""}, nil},
		{"no dose", map[string]interface{}{"unit": "mg"}, nil},
		{"null dose", map[string]interface{}{"dose": nil}, nil},
		{"unparseable dose", map[string]interface{}{"dose": "ten"}, nil},
		{"non-string unit", map[string]interface{}{"dose": 50, "unit": 5}, nil},
		{"nil details", nil, nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := alertTypes(doseAlerts(lisinopril(), tt.details))
			if len(got) != len(tt.want) {
				t.Fatalf("got %v, want %v", got, tt.want)
			}
			for i := range got {
				if got[i] != tt.want[i] {
					t.Errorf("alert %d = %s, want %s", i, got[i], tt.want[i])
				}
			}
		})
	}
}

func TestDoseAlerts_Messages(t *testing.T) {
	alerts := doseAlerts(lisinopril(), map[string]interface{}{"dose": 50.0, "unit": "mcg"})
	if len(alerts) != 2 {
		t.Fatalf("expected 2 alerts, got %d", len(alerts))
	}
	wantUnit := "Warning: The ordered unit 'mcg' does not match the default unit 'mg' for Lisinopril 10mg Tablet."
	if alerts[0].Message != wantUnit {
		t.Errorf("unit message = %q", alerts[0].Message)
	}
	wantRange := "Warning: The ordered dose of 50 mcg is outside the recommended range of 2.5-40 mg for Lisinopril 10mg Tablet."
	if alerts[1].Message != wantRange {
		t.Errorf("range message = %q", alerts[1].Message)
	}
}

func TestDoseAlerts_NotApplicable(t *testing.T) {
	noMax := lisinopril()
	noMax.MaxDose = nil
	if got := doseAlerts(noMax, map[string]interface{}{"dose": 5000}); len(got) != 0 {
		t.Errorf("no max dose: got %+v", got)
	}

	lab := &catalog.OrderableItem{ItemType: catalog.ItemLabTest, Name: "CBC", MaxDose: ptrF(1)}
	if got := doseAlerts(lab, map[string]interface{}{"dose": 5}); len(got) != 0 {
		t.Errorf("lab test: got %+v", got)
	}

	noMin := lisinopril()
	noMin.MinDose = nil
	if got := doseAlerts(noMin, map[string]interface{}{"dose": 0}); len(got) != 0 {
		t.Errorf("zero dose with no min should be in range, got %+v", got)
	}
	if got := doseAlerts(noMin, map[string]interface{}{"dose": -1}); len(got) != 1 {
		t.Errorf("negative dose should be out of range, got %+v", got)
	}
}

func TestDoseAlerts_NoDefaultUnit(t *testing.T) {
	item := lisinopril()
	item.DefaultDoseUnit = nil
	if got := doseAlerts(item, map[string]interface{}{"dose": 10, "unit": "mcg"}); len(got) != 0 {
		t.Errorf("no default unit means no mismatch, got %+v", got)
	}
}

func TestHasCritical(t *testing.T) {
	if HasCritical(nil) {
		t.Error("empty list has no critical alert")
	}
	if HasCritical([]Alert{{Severity: SeverityWarning}}) {
		t.Error("warnings are not critical")
	}
	if !HasCritical([]Alert{{Severity: SeverityWarning}, {Severity: SeverityCritical}}) {
		t.Error("expected critical")
	}
}
