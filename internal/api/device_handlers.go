package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/tappbx/tappbx/internal/database/models"
	"github.com/tappbx/tappbx/internal/provision"
)

type deviceLineRow struct {
	LineNumber    int    `json:"line_number"`
	DisplayName   string `json:"display_name"`
	AuthID        string `json:"auth_id"`
	Password      string `json:"password"`
	ServerAddress string `json:"server_address"`
	Port          int    `json:"port"`
	Transport     string `json:"transport"`
	Enabled       bool   `json:"enabled"`
}

type deviceKeyRow struct {
	Category string `json:"category"`
	KeyID    int    `json:"key_id"`
	Type     string `json:"type"`
	Value    string `json:"value"`
	Label    string `json:"label"`
}

type deviceSettingRow struct {
	Name    string `json:"name"`
	Value   string `json:"value"`
	Enabled bool   `json:"enabled"`
}

type deviceRequest struct {
	DomainID     string              `json:"domain_id"`
	MAC          string              `json:"mac"`
	Label        string              `json:"label"`
	Vendor       string              `json:"vendor"`
	TemplatePath string              `json:"template_path"`
	UserID       *string             `json:"user_id"`
	ProfileID    *string             `json:"profile_id"`
	AltID        *string             `json:"alt_id"`
	Enabled      *bool               `json:"enabled"`
	Lines        *[]deviceLineRow    `json:"lines"`
	Keys         *[]deviceKeyRow     `json:"keys"`
	Settings     *[]deviceSettingRow `json:"settings"`
}

type deviceResponse struct {
	ID                string             `json:"id"`
	DomainID          string             `json:"domain_id"`
	MAC               string             `json:"mac"`
	Label             string             `json:"label"`
	Vendor            string             `json:"vendor"`
	TemplatePath      string             `json:"template_path"`
	UserID            *string            `json:"user_id"`
	ProfileID         *string            `json:"profile_id"`
	AltID             *string            `json:"alt_id"`
	Enabled           bool               `json:"enabled"`
	ProvisionedAt     *string            `json:"provisioned_at"`
	ProvisionedMethod string             `json:"provisioned_method"`
	ProvisionedIP     string             `json:"provisioned_ip"`
	Lines             []deviceLineRow    `json:"lines,omitempty"`
	Keys              []deviceKeyRow     `json:"keys,omitempty"`
	Settings          []deviceSettingRow `json:"settings,omitempty"`
	UpdatedAt         string             `json:"updated_at"`
}

func toDeviceResponse(d *models.Device, lines []models.DeviceLine, keys []models.DeviceKey, settings []models.DeviceSetting) deviceResponse {
	resp := deviceResponse{
		ID:                d.ID,
		DomainID:          d.DomainID,
		MAC:               d.MAC,
		Label:             d.Label,
		Vendor:            d.Vendor,
		TemplatePath:      d.TemplatePath,
		UserID:            d.UserID,
		ProfileID:         d.ProfileID,
		AltID:             d.AltID,
		Enabled:           d.Enabled,
		ProvisionedMethod: d.ProvisionedMethod,
		ProvisionedIP:     d.ProvisionedIP,
		UpdatedAt:         d.UpdatedAt.Format(time.RFC3339),
	}
	if d.ProvisionedAt != nil {
		at := d.ProvisionedAt.Format(time.RFC3339)
		resp.ProvisionedAt = &at
	}
	for _, l := range lines {
		resp.Lines = append(resp.Lines, deviceLineRow{
			LineNumber: l.LineNumber, DisplayName: l.DisplayName, AuthID: l.AuthID,
			Password: l.Password, ServerAddress: l.ServerAddress, Port: l.Port,
			Transport: l.Transport, Enabled: l.Enabled,
		})
	}
	for _, k := range keys {
		resp.Keys = append(resp.Keys, deviceKeyRow{
			Category: k.Category, KeyID: k.KeyID, Type: k.Type, Value: k.Value, Label: k.Label,
		})
	}
	for _, st := range settings {
		resp.Settings = append(resp.Settings, deviceSettingRow{
			Name: st.Name, Value: st.Value, Enabled: st.Enabled,
		})
	}
	return resp
}

func (s *Server) replaceDeviceChildren(r *http.Request, deviceID string, req *deviceRequest) ([]models.DeviceLine, []models.DeviceKey, []models.DeviceSetting, error) {
	var (
		lines    []models.DeviceLine
		keys     []models.DeviceKey
		settings []models.DeviceSetting
		err      error
	)
	if req.Lines != nil {
		for _, l := range *req.Lines {
			lines = append(lines, models.DeviceLine{
				DeviceID: deviceID, LineNumber: l.LineNumber, DisplayName: l.DisplayName,
				AuthID: l.AuthID, Password: l.Password, ServerAddress: l.ServerAddress,
				Port: l.Port, Transport: l.Transport, Enabled: l.Enabled,
			})
		}
		if err = s.deps.Devices.ReplaceLines(r.Context(), deviceID, lines); err != nil {
			return nil, nil, nil, err
		}
	} else if lines, err = s.deps.Devices.ListLines(r.Context(), deviceID); err != nil {
		return nil, nil, nil, err
	}
	if req.Keys != nil {
		for _, k := range *req.Keys {
			keys = append(keys, models.DeviceKey{
				DeviceID: deviceID, Category: k.Category, KeyID: k.KeyID,
				Type: k.Type, Value: k.Value, Label: k.Label,
			})
		}
		if err = s.deps.Devices.ReplaceKeys(r.Context(), deviceID, keys); err != nil {
			return nil, nil, nil, err
		}
	} else if keys, err = s.deps.Devices.ListKeys(r.Context(), deviceID); err != nil {
		return nil, nil, nil, err
	}
	if req.Settings != nil {
		for _, st := range *req.Settings {
			settings = append(settings, models.DeviceSetting{
				DeviceID: deviceID, Name: st.Name, Value: st.Value, Enabled: st.Enabled,
			})
		}
		if err = s.deps.Devices.ReplaceSettings(r.Context(), deviceID, settings); err != nil {
			return nil, nil, nil, err
		}
	} else if settings, err = s.deps.Devices.ListSettings(r.Context(), deviceID); err != nil {
		return nil, nil, nil, err
	}
	return lines, keys, settings, nil
}

func (s *Server) handleListDevices(w http.ResponseWriter, r *http.Request) {
	devices, err := s.deps.Devices.List(r.Context(), r.URL.Query().Get("domain_id"))
	if err != nil {
		writeStoreError(w, "list devices", err)
		return
	}
	items := make([]deviceResponse, len(devices))
	for i := range devices {
		items[i] = toDeviceResponse(&devices[i], nil, nil, nil)
	}
	writeJSON(w, http.StatusOK, items)
}

func (s *Server) handleCreateDevice(w http.ResponseWriter, r *http.Request) {
	var req deviceRequest
	if errMsg := readJSON(r, &req); errMsg != "" {
		writeError(w, http.StatusBadRequest, errMsg)
		return
	}
	mac, err := provision.NormalizeMAC(req.MAC)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid mac address")
		return
	}

	d := &models.Device{
		ID:           uuid.NewString(),
		DomainID:     req.DomainID,
		MAC:          mac,
		Label:        req.Label,
		Vendor:       req.Vendor,
		TemplatePath: req.TemplatePath,
		UserID:       req.UserID,
		ProfileID:    req.ProfileID,
		AltID:        req.AltID,
		Enabled:      true,
	}
	if req.Enabled != nil {
		d.Enabled = *req.Enabled
	}

	if err := s.deps.Devices.Create(r.Context(), d); err != nil {
		writeStoreError(w, "create device", err)
		return
	}
	lines, keys, settings, err := s.replaceDeviceChildren(r, d.ID, &req)
	if err != nil {
		writeStoreError(w, "create device: children", err)
		return
	}
	writeJSON(w, http.StatusCreated, toDeviceResponse(d, lines, keys, settings))
}

func (s *Server) handleGetDevice(w http.ResponseWriter, r *http.Request) {
	d, err := s.deps.Devices.GetByID(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeStoreError(w, "get device", err)
		return
	}
	if d == nil {
		writeError(w, http.StatusNotFound, "device not found")
		return
	}
	var empty deviceRequest
	lines, keys, settings, err := s.replaceDeviceChildren(r, d.ID, &empty)
	if err != nil {
		writeStoreError(w, "get device: children", err)
		return
	}
	writeJSON(w, http.StatusOK, toDeviceResponse(d, lines, keys, settings))
}

func (s *Server) handleUpdateDevice(w http.ResponseWriter, r *http.Request) {
	d, err := s.deps.Devices.GetByID(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeStoreError(w, "update device", err)
		return
	}
	if d == nil {
		writeError(w, http.StatusNotFound, "device not found")
		return
	}

	var req deviceRequest
	if errMsg := readJSON(r, &req); errMsg != "" {
		writeError(w, http.StatusBadRequest, errMsg)
		return
	}

	if req.MAC != "" {
		mac, err := provision.NormalizeMAC(req.MAC)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid mac address")
			return
		}
		d.MAC = mac
	}
	d.Label = req.Label
	d.Vendor = req.Vendor
	if req.TemplatePath != "" {
		d.TemplatePath = req.TemplatePath
	}
	d.UserID = req.UserID
	d.ProfileID = req.ProfileID
	d.AltID = req.AltID
	if req.Enabled != nil {
		d.Enabled = *req.Enabled
	}

	if err := s.deps.Devices.Update(r.Context(), d); err != nil {
		writeStoreError(w, "update device", err)
		return
	}
	lines, keys, settings, err := s.replaceDeviceChildren(r, d.ID, &req)
	if err != nil {
		writeStoreError(w, "update device: children", err)
		return
	}
	writeJSON(w, http.StatusOK, toDeviceResponse(d, lines, keys, settings))
}

func (s *Server) handleDeleteDevice(w http.ResponseWriter, r *http.Request) {
	if err := s.deps.Devices.Delete(r.Context(), chi.URLParam(r, "id")); err != nil {
		writeStoreError(w, "delete device", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"deleted": true})
}

// Device profiles.

type deviceProfileRequest struct {
	DomainID string              `json:"domain_id"`
	Name     string              `json:"name"`
	Enabled  *bool               `json:"enabled"`
	Settings *[]deviceSettingRow `json:"settings"`
}

type deviceProfileResponse struct {
	ID       string             `json:"id"`
	DomainID string             `json:"domain_id"`
	Name     string             `json:"name"`
	Enabled  bool               `json:"enabled"`
	Settings []deviceSettingRow `json:"settings,omitempty"`
}

func toDeviceProfileResponse(p *models.DeviceProfile, settings []models.DeviceProfileSetting) deviceProfileResponse {
	resp := deviceProfileResponse{ID: p.ID, DomainID: p.DomainID, Name: p.Name, Enabled: p.Enabled}
	for _, st := range settings {
		resp.Settings = append(resp.Settings, deviceSettingRow{Name: st.Name, Value: st.Value, Enabled: st.Enabled})
	}
	return resp
}

func (s *Server) handleListDeviceProfiles(w http.ResponseWriter, r *http.Request) {
	profiles, err := s.deps.Devices.ListProfiles(r.Context(), r.URL.Query().Get("domain_id"))
	if err != nil {
		writeStoreError(w, "list device profiles", err)
		return
	}
	items := make([]deviceProfileResponse, len(profiles))
	for i := range profiles {
		items[i] = toDeviceProfileResponse(&profiles[i], nil)
	}
	writeJSON(w, http.StatusOK, items)
}

func (s *Server) handleCreateDeviceProfile(w http.ResponseWriter, r *http.Request) {
	var req deviceProfileRequest
	if errMsg := readJSON(r, &req); errMsg != "" {
		writeError(w, http.StatusBadRequest, errMsg)
		return
	}
	if errMsg := validateRequiredStringLen("name", req.Name, maxNameLen); errMsg != "" {
		writeError(w, http.StatusBadRequest, errMsg)
		return
	}

	p := &models.DeviceProfile{
		ID:       uuid.NewString(),
		DomainID: req.DomainID,
		Name:     req.Name,
		Enabled:  true,
	}
	if req.Enabled != nil {
		p.Enabled = *req.Enabled
	}
	if err := s.deps.Devices.CreateProfile(r.Context(), p); err != nil {
		writeStoreError(w, "create device profile", err)
		return
	}

	var settings []models.DeviceProfileSetting
	if req.Settings != nil {
		for _, st := range *req.Settings {
			settings = append(settings, models.DeviceProfileSetting{
				ProfileID: p.ID, Name: st.Name, Value: st.Value, Enabled: st.Enabled,
			})
		}
		if err := s.deps.Devices.ReplaceProfileSettings(r.Context(), p.ID, settings); err != nil {
			writeStoreError(w, "create device profile: settings", err)
			return
		}
	}
	writeJSON(w, http.StatusCreated, toDeviceProfileResponse(p, settings))
}

func (s *Server) handleGetDeviceProfile(w http.ResponseWriter, r *http.Request) {
	p, err := s.deps.Devices.GetProfile(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeStoreError(w, "get device profile", err)
		return
	}
	if p == nil {
		writeError(w, http.StatusNotFound, "device profile not found")
		return
	}
	settings, err := s.deps.Devices.ListProfileSettings(r.Context(), p.ID)
	if err != nil {
		writeStoreError(w, "get device profile: settings", err)
		return
	}
	writeJSON(w, http.StatusOK, toDeviceProfileResponse(p, settings))
}

func (s *Server) handleReplaceDeviceProfileSettings(w http.ResponseWriter, r *http.Request) {
	p, err := s.deps.Devices.GetProfile(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeStoreError(w, "replace device profile settings", err)
		return
	}
	if p == nil {
		writeError(w, http.StatusNotFound, "device profile not found")
		return
	}

	var rows []deviceSettingRow
	if errMsg := readJSON(r, &rows); errMsg != "" {
		writeError(w, http.StatusBadRequest, errMsg)
		return
	}
	settings := make([]models.DeviceProfileSetting, len(rows))
	for i, st := range rows {
		settings[i] = models.DeviceProfileSetting{
			ProfileID: p.ID, Name: st.Name, Value: st.Value, Enabled: st.Enabled,
		}
	}
	if err := s.deps.Devices.ReplaceProfileSettings(r.Context(), p.ID, settings); err != nil {
		writeStoreError(w, "replace device profile settings", err)
		return
	}
	writeJSON(w, http.StatusOK, toDeviceProfileResponse(p, settings))
}

func (s *Server) handleDeleteDeviceProfile(w http.ResponseWriter, r *http.Request) {
	if err := s.deps.Devices.DeleteProfile(r.Context(), chi.URLParam(r, "id")); err != nil {
		writeStoreError(w, "delete device profile", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"deleted": true})
}
