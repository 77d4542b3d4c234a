package domain

import (
	"strings"
	"time"
)

// Settings es la configuración mutable del mirror, compartida entre el tick
// y la capa HTTP. Se trata como valor: se copia al leer y se reemplaza entero.
type Settings struct {
	TargetUserID      string `json:"target_user_id"`
	MaxCopyAmount     int    `json:"max_copy_amount"`
	PollingIntervalMs int    `json:"polling_interval_ms"`
	AutoCopyEnabled   bool   `json:"auto_copy_enabled"`
	RecopyAfterReset  bool   `json:"recopy_after_reset"`
}

// PollingInterval devuelve el intervalo de polling como time.Duration.
func (s Settings) PollingInterval() time.Duration {
	return time.Duration(s.PollingIntervalMs) * time.Millisecond
}

// Validate comprueba los invariantes de la configuración.
func (s Settings) Validate() error {
	if s.MaxCopyAmount <= 0 {
		return &ValidationError{Field: "max_copy_amount", Reason: "must be > 0"}
	}
	if s.PollingIntervalMs <= 0 {
		return &ValidationError{Field: "polling_interval_ms", Reason: "must be > 0"}
	}
	if s.TargetUserID != strings.TrimSpace(s.TargetUserID) {
		return &ValidationError{Field: "target_user_id", Reason: "must not have surrounding whitespace"}
	}
	return nil
}

// SettingsPatch es una actualización parcial: los campos nil no cambian.
type SettingsPatch struct {
	TargetUserID      *string `json:"target_user_id,omitempty"`
	MaxCopyAmount     *int    `json:"max_copy_amount,omitempty"`
	PollingIntervalMs *int    `json:"polling_interval_ms,omitempty"`
	AutoCopyEnabled   *bool   `json:"auto_copy_enabled,omitempty"`
	RecopyAfterReset  *bool   `json:"recopy_after_reset,omitempty"`
}

// Empty devuelve true si el patch no cambia ningún campo.
func (p SettingsPatch) Empty() bool {
	return p.TargetUserID == nil && p.MaxCopyAmount == nil && p.PollingIntervalMs == nil &&
		p.AutoCopyEnabled == nil && p.RecopyAfterReset == nil
}

// ApplyTo devuelve una copia de s con el patch aplicado. No valida.
func (p SettingsPatch) ApplyTo(s Settings) Settings {
	if p.TargetUserID != nil {
		s.TargetUserID = *p.TargetUserID
	}
	if p.MaxCopyAmount != nil {
		s.MaxCopyAmount = *p.MaxCopyAmount
	}
	if p.PollingIntervalMs != nil {
		s.PollingIntervalMs = *p.PollingIntervalMs
	}
	if p.AutoCopyEnabled != nil {
		s.AutoCopyEnabled = *p.AutoCopyEnabled
	}
	if p.RecopyAfterReset != nil {
		s.RecopyAfterReset = *p.RecopyAfterReset
	}
	return s
}
