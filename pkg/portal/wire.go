package portal

import (
	"encoding/json"
	"sort"
	"strings"

	"github.com/marchkov/shuttle-backend/internal/models"
)

// envelope is the common {"e","m","d"} wrapper of reservation site responses
type envelope struct {
	E int             `json:"e"`
	M string          `json:"m"`
	D json.RawMessage `json:"d"`
}

// loginResponse is the reply of the authentication endpoint
type loginResponse struct {
	Success bool   `json:"success"`
	Token   string `json:"token"`
	Errors  struct {
		Code string `json:"code"`
		Msg  string `json:"msg"`
	} `json:"errors"`
}

type timetableData struct {
	List []struct {
		ID    int                         `json:"id"`
		Name  string                      `json:"name"`
		Table map[string][]timetablePeriod `json:"table"`
	} `json:"list"`
}

type timetablePeriod struct {
	TimeID   int    `json:"time_id"`
	Date     string `json:"date"`
	Abscissa string `json:"abscissa"`
	YAxis    string `json:"yaxis"`
	Row      struct {
		Margin int `json:"margin"`
	} `json:"row"`
}

type launchItem struct {
	Date          string `json:"date"`
	Period        int    `json:"period"`
	SubResourceID int    `json:"sub_resource_id"`
}

type appointmentData struct {
	Data []struct {
		ID                    int    `json:"id"`
		HallAppointmentDataID int    `json:"hall_appointment_data_id"`
		ResourceID            int    `json:"resource_id"`
		ResourceName          string `json:"resource_name"`
		AppointmentTim        string `json:"appointment_tim"`
		StatusName            string `json:"status_name"`
		AppointmentSignTime   string `json:"appointment_sign_time"`
	} `json:"data"`
}

type codeData struct {
	Code string `json:"code"`
	Name string `json:"name"`
}

// toRoutes converts a timetable listing. The portal keys each route's periods by
// an opaque column id; the first column in key order is the route's schedule.
func (d timetableData) toRoutes() []models.Route {
	routes := make([]models.Route, 0, len(d.List))
	for _, item := range d.List {
		route := models.Route{ID: item.ID, Name: item.Name, Slots: []models.Slot{}}

		keys := make([]string, 0, len(item.Table))
		for k := range item.Table {
			keys = append(keys, k)
		}
		sort.Strings(keys)

		if len(keys) > 0 {
			for _, p := range item.Table[keys[0]] {
				date := p.Date
				if date == "" {
					date = p.Abscissa
				}
				route.Slots = append(route.Slots, models.Slot{
					ID:             p.TimeID,
					Date:           strings.TrimSpace(date),
					Time:           strings.TrimSpace(p.YAxis),
					RemainingSeats: p.Row.Margin,
				})
			}
		}
		routes = append(routes, route)
	}
	return routes
}

func (d appointmentData) toAppointments() []models.Appointment {
	out := make([]models.Appointment, 0, len(d.Data))
	for _, a := range d.Data {
		out = append(out, models.Appointment{
			ID:              a.ID,
			DataID:          a.HallAppointmentDataID,
			RouteID:         a.ResourceID,
			RouteName:       a.ResourceName,
			AppointmentTime: strings.TrimSpace(a.AppointmentTim),
			StatusName:      a.StatusName,
			SignTime:        a.AppointmentSignTime,
		})
	}
	return out
}

func snippet(body []byte) string {
	const limit = 120
	s := strings.TrimSpace(string(body))
	if len(s) > limit {
		return s[:limit] + "..."
	}
	return s
}
