// Package dashboard turns deals and their timeline steps into the KPIs, alerts
// and weekly schedule shown on the agent and organization dashboards.
package dashboard

import (
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/hugh/estateflow/internal/database/models"
)

type AlertType string

const (
	AlertOverdue  AlertType = "overdue"
	AlertDueSoon  AlertType = "due_soon"
	AlertInactive AlertType = "inactive"
)

type AlertLevel string

const (
	LevelCritical AlertLevel = "critical"
	LevelWarning  AlertLevel = "warning"
)

const (
	dueSoonDays = 2
	weekDays    = 7
	unassigned  = "Unassigned"
)

type Alert struct {
	DealID      uuid.UUID  `json:"dealId"`
	DealName    string     `json:"dealName"`
	ClientName  string     `json:"clientName"`
	StepTitle   string     `json:"stepTitle"`
	Type        AlertType  `json:"alertType"`
	Level       AlertLevel `json:"alertLevel"`
	DaysOverdue int        `json:"daysOverdue"`
	DueDate     *time.Time `json:"dueDate"`
	AgentID     *uuid.UUID `json:"agentId,omitempty"`
	AgentName   string     `json:"agentName,omitempty"`
}

type WeekItem struct {
	DealID     uuid.UUID         `json:"dealId"`
	DealName   string            `json:"dealName"`
	ClientName string            `json:"clientName"`
	StepTitle  string            `json:"stepTitle"`
	StepStatus models.StepStatus `json:"stepStatus"`
	DueDate    time.Time         `json:"dueDate"`
	AgentID    *uuid.UUID        `json:"agentId,omitempty"`
	AgentName  string            `json:"agentName,omitempty"`
}

type WeekDay struct {
	Date  time.Time  `json:"date"`
	Items []WeekItem `json:"items"`
}

type KPIs struct {
	ActiveDeals        int `json:"activeDeals"`
	ActiveDealsTrend   int `json:"activeDealsTrend"`
	AlertDeals         int `json:"alertDeals"`
	AlertCritical      int `json:"alertCritical"`
	AlertWarning       int `json:"alertWarning"`
	CompletedThisMonth int `json:"completedThisMonth"`
	CompletedTrend     int `json:"completedTrend"`
	AvgCompletionDays  int `json:"avgCompletionDays"`
	// AvgCompletionTrend stays 0 until completion history is recorded.
	AvgCompletionTrend int `json:"avgCompletionTrend"`
}

type TeamMember struct {
	AgentID            uuid.UUID   `json:"agentId"`
	AgentName          string      `json:"agentName"`
	PhotoURL           *string     `json:"photoUrl"`
	Role               models.Role `json:"role"`
	ActiveDeals        int         `json:"activeDeals"`
	AlertCritical      int         `json:"alertCritical"`
	AlertWarning       int         `json:"alertWarning"`
	CompletedThisMonth int         `json:"completedThisMonth"`
}

type AgentDashboard struct {
	KPIs     KPIs      `json:"kpis"`
	Today    []Alert   `json:"today"`
	ThisWeek []WeekDay `json:"thisWeek"`
}

type OrganizationDashboard struct {
	KPIs     KPIs         `json:"kpis"`
	Today    []Alert      `json:"today"`
	ThisWeek []WeekDay    `json:"thisWeek"`
	Team     []TeamMember `json:"team"`
}

func daysBetween(from, to time.Time) int {
	return int(models.DateOnly(to).Sub(models.DateOnly(from)).Hours() / 24)
}

// open reports whether a step still counts for alerts and the weekly view.
func open(status models.StepStatus) bool {
	switch status {
	case models.StepStatusPending, models.StepStatusInProgress:
		return true
	case models.StepStatusCompleted:
		return false
	default:
		return false
	}
}

func active(d *models.Deal) bool {
	switch d.Status {
	case models.DealStatusActive:
		return true
	case models.DealStatusCompleted, models.DealStatusArchived:
		return false
	default:
		return false
	}
}

// StepAlerts returns the alerts one step raises on today. A step can raise a
// due-date alert and an inactivity alert at the same time.
func StepAlerts(deal *models.Deal, step *models.TimelineStep, today time.Time) []Alert {
	if !open(step.Status) {
		return nil
	}
	today = models.DateOnly(today)

	var due *time.Time
	if step.DueDate != nil {
		d := models.DateOnly(*step.DueDate)
		due = &d
	}
	alert := func(t AlertType, level AlertLevel, days int) Alert {
		return Alert{
			DealID:      deal.ID,
			DealName:    deal.DisplayName(),
			ClientName:  deal.ClientName,
			StepTitle:   step.Title,
			Type:        t,
			Level:       level,
			DaysOverdue: days,
			DueDate:     due,
		}
	}

	var out []Alert
	if due != nil {
		switch {
		case due.Before(today):
			out = append(out, alert(AlertOverdue, LevelCritical, daysBetween(*due, today)))
		case !due.After(today.AddDate(0, 0, dueSoonDays)):
			out = append(out, alert(AlertDueSoon, LevelWarning, 0))
		}
	}

	if step.LastActivityAt != nil {
		idle := daysBetween(*step.LastActivityAt, today)
		switch {
		case idle >= step.InactivityCriticalDays:
			out = append(out, alert(AlertInactive, LevelCritical, idle))
		case idle >= step.InactivityWarningDays:
			out = append(out, alert(AlertInactive, LevelWarning, idle))
		}
	}
	return out
}

// Alerts collects the alerts of every open step of the active deals, critical
// first and then by due date with undated alerts last.
func Alerts(deals []models.Deal, today time.Time) []Alert {
	var out []Alert
	for i := range deals {
		d := &deals[i]
		if !active(d) {
			continue
		}
		for j := range d.Steps {
			out = append(out, StepAlerts(d, &d.Steps[j], today)...)
		}
	}
	sortAlerts(out)
	return out
}

func sortAlerts(alerts []Alert) {
	sort.SliceStable(alerts, func(i, j int) bool {
		a, b := alerts[i], alerts[j]
		if a.Level != b.Level {
			return a.Level == LevelCritical
		}
		switch {
		case a.DueDate == nil:
			return false
		case b.DueDate == nil:
			return true
		default:
			return a.DueDate.Before(*b.DueDate)
		}
	})
}

// TodayView keeps the alerts needing attention now: every critical alert plus
// anything due today or tomorrow.
func TodayView(alerts []Alert, today time.Time) []Alert {
	today = models.DateOnly(today)
	tomorrow := today.AddDate(0, 0, 1)
	out := make([]Alert, 0, len(alerts))
	for _, a := range alerts {
		if a.Level == LevelCritical {
			out = append(out, a)
			continue
		}
		if a.DueDate != nil && (a.DueDate.Equal(today) || a.DueDate.Equal(tomorrow)) {
			out = append(out, a)
		}
	}
	return out
}

// Week groups the open steps of active deals due within the next seven days
// by calendar date.
func Week(deals []models.Deal, today time.Time) []WeekDay {
	today = models.DateOnly(today)
	end := today.AddDate(0, 0, weekDays)

	var items []WeekItem
	for i := range deals {
		d := &deals[i]
		if !active(d) {
			continue
		}
		for j := range d.Steps {
			s := &d.Steps[j]
			if !open(s.Status) || s.DueDate == nil {
				continue
			}
			due := s.DueDate.UTC()
			day := models.DateOnly(due)
			if day.Before(today) || day.After(end) {
				continue
			}
			items = append(items, WeekItem{
				DealID:     d.ID,
				DealName:   d.DisplayName(),
				ClientName: d.ClientName,
				StepTitle:  s.Title,
				StepStatus: s.Status,
				DueDate:    due,
			})
		}
	}

	sort.SliceStable(items, func(i, j int) bool { return items[i].DueDate.Before(items[j].DueDate) })

	days := []WeekDay{}
	for _, it := range items {
		day := models.DateOnly(it.DueDate)
		if n := len(days); n > 0 && days[n-1].Date.Equal(day) {
			days[n-1].Items = append(days[n-1].Items, it)
			continue
		}
		days = append(days, WeekDay{Date: day, Items: []WeekItem{it}})
	}
	return days
}

func monthStart(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), 1, 0, 0, 0, 0, time.UTC)
}

func completedBetween(d *models.Deal, from, to time.Time) bool {
	if d.Status != models.DealStatusCompleted {
		return false
	}
	at := d.UpdatedAt.UTC()
	return !at.Before(from) && at.Before(to)
}

// ComputeKPIs derives the headline numbers from the deals in scope and the
// alerts already computed for them.
func ComputeKPIs(deals []models.Deal, alerts []Alert, now time.Time) KPIs {
	now = now.UTC()
	thisMonth := monthStart(now)
	lastMonth := thisMonth.AddDate(0, -1, 0)
	farFuture := now.AddDate(100, 0, 0)

	var k KPIs
	var activeLastMonth, completedLastMonth, completed int
	var completionDays float64

	for i := range deals {
		d := &deals[i]
		if active(d) {
			k.ActiveDeals++
		}
		if completedBetween(d, thisMonth, farFuture) {
			k.CompletedThisMonth++
		}
		if completedBetween(d, lastMonth, thisMonth) {
			completedLastMonth++
		}
		if d.Status == models.DealStatusCompleted {
			completed++
			completionDays += d.UpdatedAt.Sub(d.CreatedAt).Hours() / 24
		}
		// Approximation of last month's active count: deals that existed before
		// this month and were still open at its start.
		if d.CreatedAt.UTC().Before(thisMonth) && (active(d) || completedBetween(d, thisMonth, farFuture)) {
			activeLastMonth++
		}
	}
	k.CompletedTrend = k.CompletedThisMonth - completedLastMonth
	k.ActiveDealsTrend = k.ActiveDeals - activeLastMonth
	if completed > 0 {
		k.AvgCompletionDays = int(completionDays / float64(completed))
	}

	dealsWithAlerts := make(map[uuid.UUID]struct{})
	for _, a := range alerts {
		dealsWithAlerts[a.DealID] = struct{}{}
		switch a.Level {
		case LevelCritical:
			k.AlertCritical++
		case LevelWarning:
			k.AlertWarning++
		}
	}
	k.AlertDeals = len(dealsWithAlerts)
	return k
}

// BuildAgent computes one agent's dashboard from the deals assigned to them.
func BuildAgent(deals []models.Deal, now time.Time) *AgentDashboard {
	alerts := Alerts(deals, now)
	return &AgentDashboard{
		KPIs:     ComputeKPIs(deals, alerts, now),
		Today:    TodayView(alerts, now),
		ThisWeek: Week(deals, now),
	}
}

func agentOf(d *models.Deal) (*uuid.UUID, string) {
	if d.AssignedToAgentID == nil {
		return nil, unassigned
	}
	id := *d.AssignedToAgentID
	if d.AssignedToAgent != nil {
		return &id, d.AssignedToAgent.DisplayName()
	}
	return &id, unassigned
}

// BuildOrganization computes the organization dashboard. Alerts and weekly
// items carry their deal's assignee and every member gets a team row.
func BuildOrganization(deals []models.Deal, members []models.OrganizationMember, now time.Time) *OrganizationDashboard {
	byID := make(map[uuid.UUID]*models.Deal, len(deals))
	for i := range deals {
		byID[deals[i].ID] = &deals[i]
	}

	alerts := Alerts(deals, now)
	for i := range alerts {
		alerts[i].AgentID, alerts[i].AgentName = agentOf(byID[alerts[i].DealID])
	}
	week := Week(deals, now)
	for i := range week {
		for j := range week[i].Items {
			it := &week[i].Items[j]
			it.AgentID, it.AgentName = agentOf(byID[it.DealID])
		}
	}

	thisMonth := monthStart(now.UTC())
	farFuture := now.UTC().AddDate(100, 0, 0)
	team := make([]TeamMember, 0, len(members))
	for _, m := range members {
		row := TeamMember{AgentID: m.AgentID, Role: m.Role, AgentName: unassigned}
		if m.Agent != nil {
			row.AgentName = m.Agent.DisplayName()
			row.PhotoURL = m.Agent.PhotoURL
		}
		for i := range deals {
			d := &deals[i]
			if !d.IsAssignedTo(m.AgentID) {
				continue
			}
			if active(d) {
				row.ActiveDeals++
			}
			if completedBetween(d, thisMonth, farFuture) {
				row.CompletedThisMonth++
			}
		}
		for _, a := range alerts {
			if a.AgentID == nil || *a.AgentID != m.AgentID {
				continue
			}
			switch a.Level {
			case LevelCritical:
				row.AlertCritical++
			case LevelWarning:
				row.AlertWarning++
			}
		}
		team = append(team, row)
	}

	return &OrganizationDashboard{
		KPIs:     ComputeKPIs(deals, alerts, now),
		Today:    TodayView(alerts, now),
		ThisWeek: week,
		Team:     team,
	}
}
