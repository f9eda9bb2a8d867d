package model

// Metrics holds the numeric indicators of one district-month. A nil field
// means the upstream value was absent or unparseable.
type Metrics struct {
	ApprovedLabourBudget       *int64   `json:"approved_labour_budget"`
	AvgWageRate                *float64 `json:"avg_wage_rate"`
	AvgDaysEmployment          *int64   `json:"avg_days_employment"`
	TotalHouseholdsWorked      *int64   `json:"total_households_worked"`
	TotalIndividualsWorked     *int64   `json:"total_individuals_worked"`
	TotalActiveJobCards        *int64   `json:"total_active_job_cards"`
	TotalActiveWorkers         *int64   `json:"total_active_workers"`
	TotalJobCardsIssued        *int64   `json:"total_job_cards_issued"`
	TotalWorkers               *int64   `json:"total_workers"`
	HHsCompleted100Days        *int64   `json:"hhs_completed_100_days"`
	SCPersondays               *int64   `json:"sc_persondays"`
	SCWorkers                  *int64   `json:"sc_workers"`
	STPersondays               *int64   `json:"st_persondays"`
	STWorkers                  *int64   `json:"st_workers"`
	WomenPersondays            *int64   `json:"women_persondays"`
	DifferentlyAbledWorked     *int64   `json:"differently_abled_worked"`
	TotalWorksCompleted        *int64   `json:"total_works_completed"`
	TotalWorksOngoing          *int64   `json:"total_works_ongoing"`
	TotalWorksTakenup          *int64   `json:"total_works_takenup"`
	GPsWithNilExp              *int64   `json:"gps_with_nil_exp"`
	TotalExpenditure           *float64 `json:"total_expenditure"`
	Wages                      *float64 `json:"wages"`
	MaterialWages              *float64 `json:"material_wages"`
	AdminExpenditure           *float64 `json:"admin_expenditure"`
	PersondaysCentralLiability *int64   `json:"persondays_central_liability"`
	PercentCategoryBWorks      *int64   `json:"percent_category_b_works"`
	PercentAgriExpenditure     *float64 `json:"percent_agri_expenditure"`
	PercentNRMExpenditure      *float64 `json:"percent_nrm_expenditure"`
	PercentPayments15Days      *float64 `json:"percent_payments_15_days"`
}

// MetricKind is the numeric type of a metric column.
type MetricKind int

const (
	IntMetric MetricKind = iota
	FloatMetric
)

// MetricField binds an upstream field name to a column and a Metrics field.
// Exactly one of Int and Float is set, matching Kind.
type MetricField struct {
	Source string
	Column string
	Kind   MetricKind
	Int    func(m *Metrics) **int64
	Float  func(m *Metrics) **float64
}

// Value returns the field of m as a driver argument (typed nil when unset).
func (f MetricField) Value(m *Metrics) any {
	if f.Kind == FloatMetric {
		return *f.Float(m)
	}
	return *f.Int(m)
}

// ScanDest returns a pointer suitable for scanning a nullable column into m.
func (f MetricField) ScanDest(m *Metrics) any {
	if f.Kind == FloatMetric {
		return f.Float(m)
	}
	return f.Int(m)
}

func intField(source, column string, get func(m *Metrics) **int64) MetricField {
	return MetricField{Source: source, Column: column, Kind: IntMetric, Int: get}
}

func floatField(source, column string, get func(m *Metrics) **float64) MetricField {
	return MetricField{Source: source, Column: column, Kind: FloatMetric, Float: get}
}

// MetricFields lists every metric in column order.
var MetricFields = []MetricField{
	intField("Approved_Labour_Budget", "approved_labour_budget", func(m *Metrics) **int64 { return &m.ApprovedLabourBudget }),
	floatField("Average_Wage_rate_per_day_per_person", "avg_wage_rate", func(m *Metrics) **float64 { return &m.AvgWageRate }),
	intField("Average_days_of_employment_provided_per_Household", "avg_days_employment", func(m *Metrics) **int64 { return &m.AvgDaysEmployment }),
	intField("Total_Households_Worked", "total_households_worked", func(m *Metrics) **int64 { return &m.TotalHouseholdsWorked }),
	intField("Total_Individuals_Worked", "total_individuals_worked", func(m *Metrics) **int64 { return &m.TotalIndividualsWorked }),
	intField("Total_No_of_Active_Job_Cards", "total_active_job_cards", func(m *Metrics) **int64 { return &m.TotalActiveJobCards }),
	intField("Total_No_of_Active_Workers", "total_active_workers", func(m *Metrics) **int64 { return &m.TotalActiveWorkers }),
	intField("Total_No_of_JobCards_issued", "total_job_cards_issued", func(m *Metrics) **int64 { return &m.TotalJobCardsIssued }),
	intField("Total_No_of_Workers", "total_workers", func(m *Metrics) **int64 { return &m.TotalWorkers }),
	intField("Total_No_of_HHs_completed_100_Days_of_Wage_Employment", "hhs_completed_100_days", func(m *Metrics) **int64 { return &m.HHsCompleted100Days }),
	intField("SC_persondays", "sc_persondays", func(m *Metrics) **int64 { return &m.SCPersondays }),
	intField("SC_workers_against_active_workers", "sc_workers", func(m *Metrics) **int64 { return &m.SCWorkers }),
	intField("ST_persondays", "st_persondays", func(m *Metrics) **int64 { return &m.STPersondays }),
	intField("ST_workers_against_active_workers", "st_workers", func(m *Metrics) **int64 { return &m.STWorkers }),
	intField("Women_Persondays", "women_persondays", func(m *Metrics) **int64 { return &m.WomenPersondays }),
	intField("Differently_abled_persons_worked", "differently_abled_worked", func(m *Metrics) **int64 { return &m.DifferentlyAbledWorked }),
	intField("Number_of_Completed_Works", "total_works_completed", func(m *Metrics) **int64 { return &m.TotalWorksCompleted }),
	intField("Number_of_Ongoing_Works", "total_works_ongoing", func(m *Metrics) **int64 { return &m.TotalWorksOngoing }),
	intField("Total_No_of_Works_Takenup", "total_works_takenup", func(m *Metrics) **int64 { return &m.TotalWorksTakenup }),
	intField("Number_of_GPs_with_NIL_exp", "gps_with_nil_exp", func(m *Metrics) **int64 { return &m.GPsWithNilExp }),
	floatField("Total_Exp", "total_expenditure", func(m *Metrics) **float64 { return &m.TotalExpenditure }),
	floatField("Wages", "wages", func(m *Metrics) **float64 { return &m.Wages }),
	floatField("Material_and_skilled_Wages", "material_wages", func(m *Metrics) **float64 { return &m.MaterialWages }),
	floatField("Total_Adm_Expenditure", "admin_expenditure", func(m *Metrics) **float64 { return &m.AdminExpenditure }),
	intField("Persondays_of_Central_Liability_so_far", "persondays_central_liability", func(m *Metrics) **int64 { return &m.PersondaysCentralLiability }),
	intField("percent_of_Category_B_Works", "percent_category_b_works", func(m *Metrics) **int64 { return &m.PercentCategoryBWorks }),
	floatField("percent_of_Expenditure_on_Agriculture_Allied_Works", "percent_agri_expenditure", func(m *Metrics) **float64 { return &m.PercentAgriExpenditure }),
	floatField("percent_of_NRM_Expenditure", "percent_nrm_expenditure", func(m *Metrics) **float64 { return &m.PercentNRMExpenditure }),
	floatField("percentage_payments_gererated_within_15_days", "percent_payments_15_days", func(m *Metrics) **float64 { return &m.PercentPayments15Days }),
}

// MetricColumns returns the metric column names in table order.
func MetricColumns() []string {
	cols := make([]string, len(MetricFields))
	for i, f := range MetricFields {
		cols[i] = f.Column
	}
	return cols
}
