package repository

import (
	"context"
	stdsql "database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	entsql "entgo.io/ent/dialect/sql"
	"github.com/google/uuid"

	"github.com/nsyy/eye-pacs/constants"
	"github.com/nsyy/eye-pacs/internal/common"
	"github.com/nsyy/eye-pacs/internal/entity"
)

const reportsTable = "ehp_reports"

var reportColumns = []string{
	"report_id",
	"report_name",
	"report_addr",
	"report_time",
	"report_machine",
	"register_id",
	"patient_id",
	"report_value",
}

type ReportRepository interface {
	InsertMany(ctx context.Context, rows []entity.Report) error
	Create(ctx context.Context, row entity.Report) error
	Get(ctx context.Context, id uuid.UUID) (*entity.Report, error)
	ListUnparsed(ctx context.Context, limit int) ([]entity.Report, error)
	UpdateParsed(ctx context.Context, id uuid.UUID, name string, value json.RawMessage) error
	ListByRegister(ctx context.Context, registerID string) ([]entity.Report, error)
	Bind(ctx context.Context, id uuid.UUID, registerID, patientID string) error
	ListParsed(ctx context.Context, from, to time.Time) ([]entity.Report, error)
}

type reportRepo struct {
	drv    *entsql.Driver
	logger *slog.Logger
}

func NewReportRepository(db *DB, logger *slog.Logger) ReportRepository {
	return &reportRepo{
		drv:    db.Driver,
		logger: logger,
	}
}

func (r *reportRepo) builder() *entsql.DialectBuilder {
	return entsql.Dialect(r.drv.Dialect())
}

func (r *reportRepo) selectReports() *entsql.Selector {
	b := r.builder()
	return b.Select(reportColumns...).From(b.Table(reportsTable))
}

// InsertMany writes all rows in a single INSERT. An empty slice is a no-op.
func (r *reportRepo) InsertMany(ctx context.Context, rows []entity.Report) error {
	if len(rows) == 0 {
		return nil
	}
	ins := r.builder().Insert(reportsTable).Columns(reportColumns...)
	for _, row := range rows {
		ins.Values(
			row.ID.String(),
			row.Name,
			row.Addr,
			formatTime(row.Time),
			row.Machine,
			nullable(row.RegisterID),
			nullable(row.PatientID),
			nullableJSON(row.Value),
		)
	}
	query, args := ins.Query()

	var res stdsql.Result
	if err := r.drv.Exec(ctx, query, args, &res); err != nil {
		r.logger.Error("failed to insert reports", "count", len(rows), "error", err)
		return common.WrapError(err, "insert reports")
	}
	r.logger.Debug("reports inserted", "count", len(rows))
	return nil
}

func (r *reportRepo) Create(ctx context.Context, row entity.Report) error {
	return r.InsertMany(ctx, []entity.Report{row})
}

func (r *reportRepo) Get(ctx context.Context, id uuid.UUID) (*entity.Report, error) {
	query, args := r.selectReports().Where(entsql.EQ("report_id", id.String())).Query()
	rows, err := r.query(ctx, query, args)
	if err != nil {
		r.logger.Error("failed to get report", "report_id", id, "error", err)
		return nil, err
	}
	if len(rows) == 0 {
		return nil, common.NewAppError("NOT_FOUND", fmt.Sprintf("report %s", id), common.ErrNotFound)
	}
	return &rows[0], nil
}

// ListUnparsed returns up to limit rows without report_value, oldest first.
func (r *reportRepo) ListUnparsed(ctx context.Context, limit int) ([]entity.Report, error) {
	query, args := r.selectReports().
		Where(entsql.IsNull("report_value")).
		OrderBy(entsql.Asc("report_time")).
		Limit(limit).
		Query()
	rows, err := r.query(ctx, query, args)
	if err != nil {
		r.logger.Error("failed to list unparsed reports", "error", err)
		return nil, err
	}
	return rows, nil
}

// UpdateParsed sets report_value and report_name only while report_value is
// still NULL. A row already parsed by another batch yields ErrAlreadyParsed.
func (r *reportRepo) UpdateParsed(ctx context.Context, id uuid.UUID, name string, value json.RawMessage) error {
	if value == nil {
		value = json.RawMessage("{}")
	}
	query, args := r.builder().Update(reportsTable).
		Set("report_name", name).
		Set("report_value", string(value)).
		Where(entsql.And(
			entsql.EQ("report_id", id.String()),
			entsql.IsNull("report_value"),
		)).
		Query()

	n, err := r.exec(ctx, query, args)
	if err != nil {
		r.logger.Error("failed to update parsed report", "report_id", id, "error", err)
		return err
	}
	if n == 0 {
		return common.NewAppError("ALREADY_PARSED", fmt.Sprintf("report %s", id), common.ErrAlreadyParsed)
	}
	return nil
}

// ListByRegister returns rows bound to registerID plus rows not yet bound to
// any register (NULL or empty), newest first.
func (r *reportRepo) ListByRegister(ctx context.Context, registerID string) ([]entity.Report, error) {
	query, args := r.selectReports().
		Where(entsql.Or(
			entsql.EQ("register_id", registerID),
			entsql.IsNull("register_id"),
			entsql.EQ("register_id", ""),
		)).
		OrderBy(entsql.Desc("report_time")).
		Query()
	rows, err := r.query(ctx, query, args)
	if err != nil {
		r.logger.Error("failed to list reports by register", "register_id", registerID, "error", err)
		return nil, err
	}
	return rows, nil
}

// Bind attaches a report to a registration. An empty registerID unbinds.
func (r *reportRepo) Bind(ctx context.Context, id uuid.UUID, registerID, patientID string) error {
	upd := r.builder().Update(reportsTable)
	if registerID == "" {
		upd.SetNull("register_id").SetNull("patient_id")
	} else {
		upd.Set("register_id", registerID).Set("patient_id", patientID)
	}
	query, args := upd.Where(entsql.EQ("report_id", id.String())).Query()

	n, err := r.exec(ctx, query, args)
	if err != nil {
		r.logger.Error("failed to bind report", "report_id", id, "register_id", registerID, "error", err)
		return err
	}
	if n == 0 {
		return common.NewAppError("NOT_FOUND", fmt.Sprintf("report %s", id), common.ErrNotFound)
	}
	r.logger.Info("report bound", "report_id", id, "register_id", registerID)
	return nil
}

// ListParsed returns parsed rows with from <= report_time < to.
func (r *reportRepo) ListParsed(ctx context.Context, from, to time.Time) ([]entity.Report, error) {
	query, args := r.selectReports().
		Where(entsql.And(
			entsql.NotNull("report_value"),
			entsql.GTE("report_time", formatTime(from)),
			entsql.LT("report_time", formatTime(to)),
		)).
		OrderBy(entsql.Asc("report_time")).
		Query()
	rows, err := r.query(ctx, query, args)
	if err != nil {
		r.logger.Error("failed to list parsed reports", "error", err)
		return nil, err
	}
	return rows, nil
}

func (r *reportRepo) exec(ctx context.Context, query string, args []any) (int64, error) {
	var res stdsql.Result
	if err := r.drv.Exec(ctx, query, args, &res); err != nil {
		return 0, common.WrapError(err, "exec")
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, common.WrapError(err, "rows affected")
	}
	return n, nil
}

func (r *reportRepo) query(ctx context.Context, query string, args []any) ([]entity.Report, error) {
	var rows entsql.Rows
	if err := r.drv.Query(ctx, query, args, &rows); err != nil {
		return nil, common.WrapError(err, "query reports")
	}
	defer rows.Close()

	var out []entity.Report
	for rows.Next() {
		var (
			id, name, addr, ts, machine string
			register, patient, value    stdsql.NullString
		)
		if err := rows.Scan(&id, &name, &addr, &ts, &machine, &register, &patient, &value); err != nil {
			return nil, common.WrapError(err, "scan report")
		}
		rid, err := uuid.Parse(id)
		if err != nil {
			return nil, common.WrapError(err, "parse report_id")
		}
		t, err := time.ParseInLocation(constants.ReportTimeLayout, ts, time.Local)
		if err != nil {
			return nil, common.WrapError(err, "parse report_time")
		}
		rep := entity.Report{
			ID:         rid,
			Name:       name,
			Addr:       addr,
			Time:       t,
			Machine:    machine,
			RegisterID: ptr(register),
			PatientID:  ptr(patient),
		}
		if value.Valid {
			rep.Value = json.RawMessage(value.String)
		}
		out = append(out, rep)
	}
	if err := rows.Err(); err != nil {
		return nil, common.WrapError(err, "iterate reports")
	}
	return out, nil
}

func formatTime(t time.Time) string {
	return t.In(time.Local).Format(constants.ReportTimeLayout)
}

func nullable(s *string) any {
	if s == nil {
		return nil
	}
	return *s
}

func nullableJSON(v json.RawMessage) any {
	if v == nil {
		return nil
	}
	return string(v)
}

func ptr(ns stdsql.NullString) *string {
	if !ns.Valid {
		return nil
	}
	s := ns.String
	return &s
}
