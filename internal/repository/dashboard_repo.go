package repository

import (
	"context"

	"github.com/jmoiron/sqlx"

	"github.com/larscolombia/kapa/internal/models"
)

type DashboardRepo struct {
	db *sqlx.DB
}

func NewDashboardRepo(db *sqlx.DB) *DashboardRepo {
	return &DashboardRepo{db: db}
}

type Counters struct {
	Projects    int `db:"projects" json:"projects"`
	Contractors int `db:"contractors" json:"contractors"`
	OpenILV     int `db:"open_ilv" json:"openIlv"`
	ClosedILV   int `db:"closed_ilv" json:"closedIlv"`
	Templates   int `db:"templates" json:"templates"`
	Submissions int `db:"submissions" json:"submissions"`
}

// Counters computes the tenant-scoped dashboard numbers in one round trip.
func (r *DashboardRepo) Counters(ctx context.Context, scope models.Scope) (*Counters, error) {
	clause, args := projectScope("p", scope)
	if clause == "" {
		clause = "TRUE"
	}
	w := &where{}
	w.add(clause, args...)
	cond := w.clauses[0]

	var c Counters
	err := r.db.GetContext(ctx, &c, `
		SELECT
			(SELECT count(*) FROM projects p WHERE `+cond+`) AS projects,
			(SELECT count(DISTINCT pc.contractor_id) FROM project_contractors pc
				JOIN projects p ON p.id = pc.project_id WHERE `+cond+`) AS contractors,
			(SELECT count(*) FROM ilv_reports r JOIN projects p ON p.id = r.project_id
				WHERE r.estado = 'abierto' AND `+cond+`) AS open_ilv,
			(SELECT count(*) FROM ilv_reports r JOIN projects p ON p.id = r.project_id
				WHERE r.estado = 'cerrado' AND `+cond+`) AS closed_ilv,
			(SELECT count(*) FROM form_templates WHERE active) AS templates,
			(SELECT count(*) FROM form_submissions s JOIN ilv_reports r ON r.id = s.report_id
				JOIN projects p ON p.id = r.project_id WHERE `+cond+`) AS submissions`, w.args...)
	if err != nil {
		return nil, err
	}
	return &c, nil
}
