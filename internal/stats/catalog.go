// Package stats serves read-only mobilization statistics backed by SQL views.
//
// Only relations listed in the catalog below are ever queried; request input
// selects an entry by name and never reaches the SQL text.
package stats

import (
	"sort"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/samber/lo"
)

// View is one SQL relation and the columns exposed from it.
type View struct {
	Relation string
	Columns  []string
}

// Query renders the SELECT statement for v.
func (v View) Query() string {
	cols := lo.Map(v.Columns, func(c string, _ int) string {
		return pgx.Identifier{c}.Sanitize()
	})
	return "SELECT " + strings.Join(cols, ", ") + " FROM " + pgx.Identifier{v.Relation}.Sanitize()
}

// Report groups several views fetched together.
type Report struct {
	Sections map[string]View
	// Primary names the section whose row count is reported in the metadata.
	Primary string
}

var views = map[string]View{
	"elder-totals":       {Relation: "vtotal_adultos", Columns: []string{"movilizados", "por_movilizar", "meta"}},
	"elder-hours":        {Relation: "vmovilizacion_adultos_horas", Columns: []string{"franja_horaria", "cantidad", "acumulado"}},
	"elder-states":       {Relation: "vmovilizacion_adultos_estados", Columns: []string{"estado", "cantidad_personas", "porcentaje_cantidad_personas", "por_movilizar", "porcentaje_por_movilizar", "adultos_meta"}},
	"elder-goals":        {Relation: "vcumplimiento_metas_adultos", Columns: []string{"estado", "cantidad_adultos", "meta"}},
	"server-totals":      {Relation: "vtotal_servidores", Columns: []string{"movilizados", "por_movilizar", "meta"}},
	"server-hours":       {Relation: "vmovilizacion_servidores_horas", Columns: []string{"franja_horaria", "cantidad", "acumulado"}},
	"server-area-totals": {Relation: "vmovilizacion_servidorres_insitucion_area", Columns: []string{"institucion", "area", "movilizados", "por_movilizar", "total"}},
}

var reports = map[string]Report{
	"elder-statistics": {
		Primary: "movilizacion",
		Sections: map[string]View{
			"movilizacion": {Relation: "vmovilizacion_adultos", Columns: []string{"franja_horaria", "region", "estado", "nac", "cedula", "nombre", "fecha_nac", "edad", "sexo", "hora_voto"}},
			"estados":      {Relation: "vmovilizacion_adultos_estados", Columns: []string{"estado_id", "estado", "cantidad_personas"}},
			"horas":        {Relation: "vmovilizacion_adultos_horas", Columns: []string{"franja_horaria", "cantidad", "acumulado"}},
			"regiones":     {Relation: "vmovilizacion_adultos_regiones", Columns: []string{"id", "region", "cantidad_personas"}},
		},
	},
	"server-statistics": {
		Primary: "movilizacion",
		Sections: map[string]View{
			"movilizacion":  {Relation: "vmovilizacion_servidores", Columns: []string{"id", "franja_horaria", "institucion_id", "institucion", "sede_id", "sede", "area_id", "area", "cedula", "nombres", "hora_voto", "observaciones"}},
			"servidores":    {Relation: "vservidores", Columns: []string{"id", "institucion_id", "institucion", "sede_id", "sede", "area_id", "area", "cedula", "nombres", "hora_voto", "observaciones"}},
			"horas":         {Relation: "vmovilizacion_servidores_horas", Columns: []string{"franja_horaria", "cantidad", "acumulado"}},
			"total":         {Relation: "vtotal_servidores", Columns: []string{"movilizados", "por_movilizar", "total_registros"}},
			"instituciones": {Relation: "vmovilizacion_servidores_institucion", Columns: []string{"institucion_id", "institucion", "movilizados", "total_registros"}},
			"sedes":         {Relation: "vmovilizacion_servidores_sedes", Columns: []string{"sede_id", "sede", "movilizados", "total_registros"}},
			"areas":         {Relation: "vmovilizacion_servidores_area", Columns: []string{"id", "area", "movilizados", "total_registros"}},
		},
	},
}

// Names lists every statistic that can be requested.
func Names() []string {
	names := append(lo.Keys(views), lo.Keys(reports)...)
	sort.Strings(names)
	return names
}
