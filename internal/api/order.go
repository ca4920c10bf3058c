package api

import (
	"sort"
	"strings"
	"time"
)

// Order statuses as reported in estadoOrden.
const (
	StatusPendingWeighing        = "PENDIENTE_PESAJE"
	StatusPendingInitialWeighing = "PENDIENTE_PESAJE_INICIAL"
	StatusInitialWeighing        = "PESAJE_INICIAL"
	StatusInitialWeighed         = "CON_PESAJE_INICIAL"
	StatusLoading                = "CARGANDO"
	StatusClosedForLoading       = "CERRADA_PARA_CARGA"
	StatusFinished               = "FINALIZADA"
	StatusTemperatureAlarm       = "ALARMA_TEMPERATURA"
)

var statusLabels = map[string]string{
	StatusPendingWeighing:        "Pendiente pesaje",
	StatusPendingInitialWeighing: "Pendiente pesaje inicial",
	StatusInitialWeighing:        "Pesaje inicial",
	StatusInitialWeighed:         "Con pesaje inicial",
	StatusLoading:                "Cargando",
	StatusClosedForLoading:       "Cerrada para carga",
	StatusFinished:               "Finalizada",
	StatusTemperatureAlarm:       "Alarma temp",
}

// StatusLabel returns the display label for an order status. Matching is
// case-insensitive; unknown statuses are returned as given and an empty
// status becomes "—".
func StatusLabel(status string) string {
	if label, ok := statusLabels[strings.ToUpper(strings.TrimSpace(status))]; ok {
		return label
	}
	if status == "" {
		return "—"
	}
	return status
}

type Product struct {
	ID                   int64    `json:"id,omitempty"`
	Name                 string   `json:"nombre,omitempty"`
	TemperatureThreshold *float64 `json:"temperatura_umbral,omitempty"`
}

type Truck struct {
	ID    int64  `json:"id,omitempty"`
	Plate string `json:"patente,omitempty"`
}

type Driver struct {
	ID        int64  `json:"id,omitempty"`
	FirstName string `json:"nombre,omitempty"`
	LastName  string `json:"apellido,omitempty"`
	DNI       string `json:"dni,omitempty"`
}

// FullName joins the non-empty name parts.
func (d *Driver) FullName() string {
	if d == nil {
		return ""
	}
	return strings.TrimSpace(strings.Join([]string{d.FirstName, d.LastName}, " "))
}

type Customer struct {
	ID          int64  `json:"id,omitempty"`
	CompanyName string `json:"nombreEmpresa,omitempty"`
}

// Order is a loading order as returned by the backend.
type Order struct {
	ID                  int64     `json:"id,omitempty"`
	Number              int64     `json:"numeroOrden,omitempty"`
	Status              string    `json:"estadoOrden,omitempty"`
	Product             *Product  `json:"producto,omitempty"`
	Truck               *Truck    `json:"camion,omitempty"`
	Driver              *Driver   `json:"chofer,omitempty"`
	Customer            *Customer `json:"cliente,omitempty"`
	Preset              float64   `json:"preset,omitempty"`
	LastAccumulatedMass *float64  `json:"ultimaMasaAcumulada,omitempty"`
	LastDensity         *float64  `json:"ultimaDensidad,omitempty"`
	LastTemperature     *float64  `json:"ultimaTemperatura,omitempty"`
	LastFlowRate        *float64  `json:"ultimaFlowRate,omitempty"`
	AlarmActive         bool      `json:"alarmaActivada,omitempty"`
}

// TemperatureThreshold returns the product's temperature threshold, if any.
func (o *Order) TemperatureThreshold() (float64, bool) {
	if o.Product == nil || o.Product.TemperatureThreshold == nil {
		return 0, false
	}
	return *o.Product.TemperatureThreshold, true
}

// Progress is the accumulated mass as a fraction of the preset, in [0, 1].
func (o *Order) Progress() float64 {
	if o.Preset <= 0 || o.LastAccumulatedMass == nil {
		return 0
	}
	p := *o.LastAccumulatedMass / o.Preset
	switch {
	case p < 0:
		return 0
	case p > 1:
		return 1
	}
	return p
}

// LoadRecord is one sample posted while the truck was loading.
type LoadRecord struct {
	DateTime    string   `json:"fechaHora,omitempty"`
	Timestamp   *int64   `json:"timestamp,omitempty"` // epoch milliseconds
	Temperature float64  `json:"temperatura"`
	Mass        *float64 `json:"masa,omitempty"`
	Density     *float64 `json:"densidad,omitempty"`
	FlowRate    *float64 `json:"caudal,omitempty"`
}

var recordLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999999",
	"2006-01-02 15:04:05",
}

// Time returns when the sample was taken, preferring fechaHora. The zero
// time means neither field could be read.
func (r LoadRecord) Time() time.Time {
	if r.DateTime != "" {
		for _, layout := range recordLayouts {
			if t, err := time.ParseInLocation(layout, r.DateTime, time.Local); err == nil {
				return t
			}
		}
	}
	if r.Timestamp != nil {
		return time.UnixMilli(*r.Timestamp)
	}
	return time.Time{}
}

// SortLoadRecords orders records oldest first. Records without a readable
// time keep their relative order at the front.
func SortLoadRecords(records []LoadRecord) {
	sort.SliceStable(records, func(i, j int) bool {
		return records[i].Time().Before(records[j].Time())
	})
}
