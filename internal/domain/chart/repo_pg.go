package chart

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/hms/hms/internal/platform/db"
)

type queryable interface {
	Query(ctx context.Context, sql string, args ...interface{}) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...interface{}) pgx.Row
	Exec(ctx context.Context, sql string, args ...interface{}) (pgconn.CommandTag, error)
}

func connFor(ctx context.Context, pool *pgxpool.Pool) queryable {
	if tx := db.TxFromContext(ctx); tx != nil {
		return tx
	}
	if c := db.ConnFromContext(ctx); c != nil {
		return c
	}
	return pool
}

// =========== Patient Repository ===========

type patientRepoPG struct{ pool *pgxpool.Pool }

func NewPatientRepoPG(pool *pgxpool.Pool) PatientRepository {
	return &patientRepoPG{pool: pool}
}

func (r *patientRepoPG) Create(ctx context.Context, p *Patient) error {
	if p.ID == uuid.Nil {
		p.ID = uuid.New()
	}
	return connFor(ctx, r.pool).QueryRow(ctx, `
		INSERT INTO patient (id, mrn, first_name, last_name, date_of_birth, gender)
		VALUES ($1,$2,$3,$4,$5,$6)
		RETURNING created_at, updated_at`,
		p.ID, p.MRN, p.FirstName, p.LastName, p.DateOfBirth, p.Gender,
	).Scan(&p.CreatedAt, &p.UpdatedAt)
}

func (r *patientRepoPG) GetByID(ctx context.Context, id uuid.UUID) (*Patient, error) {
	var p Patient
	err := connFor(ctx, r.pool).QueryRow(ctx, `
		SELECT id, mrn, first_name, last_name, date_of_birth, gender, created_at, updated_at
		FROM patient WHERE id = $1`, id,
	).Scan(&p.ID, &p.MRN, &p.FirstName, &p.LastName, &p.DateOfBirth, &p.Gender, &p.CreatedAt, &p.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrPatientNotFound
	}
	if err != nil {
		return nil, err
	}
	return &p, nil
}

// =========== Allergy Repository ===========

type allergyRepoPG struct{ pool *pgxpool.Pool }

func NewAllergyRepoPG(pool *pgxpool.Pool) AllergyRepository {
	return &allergyRepoPG{pool: pool}
}

func (r *allergyRepoPG) Create(ctx context.Context, a *PatientAllergy) error {
	a.ID = uuid.New()
	if a.Severity == "" {
		a.Severity = "Unknown"
	}
	return connFor(ctx, r.pool).QueryRow(ctx, `
		INSERT INTO patient_allergy (id, patient_id, allergen_name, reaction_description, severity, is_active, recorded_by)
		VALUES ($1,$2,$3,$4,$5,$6,$7)
		RETURNING recorded_at`,
		a.ID, a.PatientID, a.AllergenName, a.ReactionDescription, a.Severity, a.IsActive, a.RecordedBy,
	).Scan(&a.RecordedAt)
}

func (r *allergyRepoPG) ListActiveAllergies(ctx context.Context, patientID uuid.UUID) ([]*PatientAllergy, error) {
	rows, err := connFor(ctx, r.pool).Query(ctx, `
		SELECT id, patient_id, allergen_name, reaction_description, severity, is_active, recorded_by, recorded_at
		FROM patient_allergy
		WHERE patient_id = $1 AND is_active = TRUE
		ORDER BY recorded_at ASC`, patientID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*PatientAllergy
	for rows.Next() {
		var a PatientAllergy
		if err := rows.Scan(&a.ID, &a.PatientID, &a.AllergenName, &a.ReactionDescription,
			&a.Severity, &a.IsActive, &a.RecordedBy, &a.RecordedAt); err != nil {
			return nil, err
		}
		out = append(out, &a)
	}
	return out, rows.Err()
}

// =========== Medication Repository ===========

type medicationRepoPG struct{ pool *pgxpool.Pool }

func NewMedicationRepoPG(pool *pgxpool.Pool) MedicationRepository {
	return &medicationRepoPG{pool: pool}
}

func (r *medicationRepoPG) Create(ctx context.Context, m *PatientMedication) error {
	m.ID = uuid.New()
	if m.Status == "" {
		m.Status = MedStatusActive
	}
	return connFor(ctx, r.pool).QueryRow(ctx, `
		INSERT INTO patient_medication (id, patient_id, orderable_item_id, medication_name, med_type,
			status, dose, route, frequency, source_order_id)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)
		RETURNING recorded_at`,
		m.ID, m.PatientID, m.OrderableItemID, m.MedicationName, m.MedType,
		m.Status, m.Dose, m.Route, m.Frequency, m.SourceOrderID,
	).Scan(&m.RecordedAt)
}

// ListActiveInpatientMedications prefers the catalog name over the free-text
// name for medications linked to an orderable item.
func (r *medicationRepoPG) ListActiveInpatientMedications(ctx context.Context, patientID uuid.UUID) ([]*PatientMedication, error) {
	rows, err := connFor(ctx, r.pool).Query(ctx, `
		SELECT pm.id, pm.patient_id, pm.orderable_item_id, COALESCE(oi.name, pm.medication_name),
		       pm.med_type, pm.status, pm.dose, pm.route, pm.frequency, pm.source_order_id, pm.recorded_at
		FROM patient_medication pm
		LEFT JOIN orderable_item oi ON oi.id = pm.orderable_item_id
		WHERE pm.patient_id = $1 AND pm.status = $2 AND pm.med_type = $3
		ORDER BY pm.recorded_at ASC`,
		patientID, MedStatusActive, MedInpatientActive)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*PatientMedication
	for rows.Next() {
		var m PatientMedication
		if err := rows.Scan(&m.ID, &m.PatientID, &m.OrderableItemID, &m.MedicationName,
			&m.MedType, &m.Status, &m.Dose, &m.Route, &m.Frequency, &m.SourceOrderID, &m.RecordedAt); err != nil {
			return nil, err
		}
		out = append(out, &m)
	}
	return out, rows.Err()
}
