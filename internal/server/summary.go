package server

import (
	"fmt"
	"log/slog"

	"github.com/nsyy/eye-pacs/internal/entity"
)

// Summary section titles, as keyed by the clinic's pre-op forms.
const (
	SectionPreopExam   = "术前眼部检查"
	SectionRGPFitting  = "硬性角膜接触镜验配病历"
	SectionLaserRecord = "TransPRK/FS_LASIK手术记录"
)

var laserFields = []string{
	"corneal_curvate",
	"diopter",
	"corneal_thick",
	"flap_thick",
	"light_area",
	"cut_depth",
	"cut_time",
}

type merged map[string]string

func (m merged) get(key string) string { return m[key] }

func (m merged) eyes(right, left string) map[string]string {
	return map[string]string{"od": m[right], "os": m[left]}
}

// Summarize merges the extracted fields of every bound, parsed report and
// lays them out as the pre-op form sections. Newer reports win on key
// collisions; rows arrive newest first.
func Summarize(rows []entity.Report, logger *slog.Logger) map[string]any {
	if logger == nil {
		logger = slog.Default()
	}
	m := merged{}
	for i := len(rows) - 1; i >= 0; i-- {
		row := rows[i]
		if row.RegisterID == nil || *row.RegisterID == "" || row.Value == nil {
			continue
		}
		fields, err := row.Fields()
		if err != nil {
			logger.Warn("skipping unreadable report_value", "report_id", row.ID, "error", err)
			continue
		}
		for k, v := range fields {
			if s, ok := v.(string); ok {
				m[k] = s
			} else {
				m[k] = fmt.Sprint(v)
			}
		}
	}

	laser := map[string]string{}
	for _, f := range laserFields {
		laser[f+"_od"] = m.get(f + "_od")
		laser[f+"_os"] = m.get(f + "_os")
	}

	curvature := map[string]string{
		"k1_od": m.get("r_k1"),
		"k1_os": m.get("l_k1"),
		"k2_od": m.get("r_k2"),
		"k2_os": m.get("l_k2"),
	}
	cornealPara := map[string]string{
		"inner_od":        m.get("r_cd"),
		"inner_os":        m.get("l_cd"),
		"evalue_od":       m.get("r_pe"),
		"evalue_os":       m.get("l_pe"),
		"diameter_od":     "",
		"diameter_os":     "",
		"thickness_od":    "",
		"thickness_os":    "",
		"curvature_k1_od": m.get("r_pk1"),
		"curvature_k1_os": m.get("l_pk1"),
		"curvature_k2_od": m.get("r_xk2"),
		"curvature_k2_os": m.get("l_xk2"),
	}

	preop := map[string]any{
		"corneal_thick":     m.eyes("r_thinnest_point", "l_thinnest_point"),
		"curvature_radius":  m.eyes("r_rm", "l_rm"),
		"corneal_curvature": curvature,
	}

	return map[string]any{
		SectionPreopExam:   preop,
		SectionRGPFitting:  map[string]any{"corneal_para": cornealPara},
		SectionLaserRecord: laser,
	}
}
