package provision

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"
	"text/template"

	"github.com/tappbx/tappbx/internal/database"
	"github.com/tappbx/tappbx/internal/database/models"
)

// settingLayers is the merge order for provisioning defaults. Later layers
// win per key.
type kv struct {
	key, value string
}

func mergeLayers(layers ...[]kv) map[string]string {
	out := map[string]string{}
	for _, layer := range layers {
		for _, s := range layer {
			out[s.key] = s.value
		}
	}
	return out
}

func settingLayer(rows []models.Setting) []kv {
	var out []kv
	for _, s := range rows {
		if s.Enabled && s.Category == "provision" {
			out = append(out, kv{s.Subcategory, s.Value})
		}
	}
	return out
}

func profileLayer(rows []models.DeviceProfileSetting) []kv {
	var out []kv
	for _, s := range rows {
		if s.Enabled {
			out = append(out, kv{s.Name, s.Value})
		}
	}
	return out
}

func deviceLayer(rows []models.DeviceSetting) []kv {
	var out []kv
	for _, s := range rows {
		if s.Enabled {
			out = append(out, kv{s.Name, s.Value})
		}
	}
	return out
}

func keysByCategory(keys []models.DeviceKey, category string) []models.DeviceKey {
	var out []models.DeviceKey
	for _, k := range keys {
		if k.Category == category {
			out = append(out, k)
		}
	}
	return out
}

// Renderer loads device templates and builds their data context.
type Renderer struct {
	settings database.SettingRepository
	devices  database.DeviceRepository
	root     string
}

// NewRenderer creates a Renderer rooted at the template directory.
func NewRenderer(settings database.SettingRepository, devices database.DeviceRepository, root string) *Renderer {
	return &Renderer{settings: settings, devices: devices, root: root}
}

// Defaults merges the provisioning setting layers for one device:
// global, then tenant, then linked user, then profile, then the device
// itself. The last writer wins per key.
func (r *Renderer) Defaults(ctx context.Context, dev *models.Device) (map[string]string, error) {
	global, err := r.settings.List(ctx, models.ScopeGlobal, nil, nil)
	if err != nil {
		return nil, fmt.Errorf("global provision settings: %w", err)
	}
	tenant, err := r.settings.List(ctx, models.ScopeDomain, &dev.DomainID, nil)
	if err != nil {
		return nil, fmt.Errorf("tenant provision settings: %w", err)
	}

	var user []models.Setting
	if dev.UserID != nil {
		user, err = r.settings.List(ctx, models.ScopeUser, &dev.DomainID, dev.UserID)
		if err != nil {
			return nil, fmt.Errorf("user provision settings: %w", err)
		}
	}

	var profile []models.DeviceProfileSetting
	if dev.ProfileID != nil {
		profile, err = r.devices.ListProfileSettings(ctx, *dev.ProfileID)
		if err != nil {
			return nil, fmt.Errorf("profile settings: %w", err)
		}
	}

	own, err := r.devices.ListSettings(ctx, dev.ID)
	if err != nil {
		return nil, fmt.Errorf("device settings: %w", err)
	}

	return mergeLayers(
		settingLayer(global),
		settingLayer(tenant),
		settingLayer(user),
		profileLayer(profile),
		deviceLayer(own),
	), nil
}

// Context builds the full template data for one device.
func (r *Renderer) Context(ctx context.Context, dev *models.Device) (map[string]any, error) {
	defs, err := r.Defaults(ctx, dev)
	if err != nil {
		return nil, err
	}
	lines, err := r.devices.ListLines(ctx, dev.ID)
	if err != nil {
		return nil, fmt.Errorf("device lines: %w", err)
	}
	keys, err := r.devices.ListKeys(ctx, dev.ID)
	if err != nil {
		return nil, fmt.Errorf("device keys: %w", err)
	}
	contacts, err := r.devices.ListContacts(ctx, dev.DomainID)
	if err != nil {
		return nil, fmt.Errorf("contacts: %w", err)
	}

	data := map[string]any{
		"prov_defs":         defs,
		"prov_lines":        lines,
		"line_keys":         keysByCategory(keys, "line"),
		"memory_keys":       keysByCategory(keys, "memory"),
		"programmable_keys": keysByCategory(keys, "programmable"),
		"contacts":          contacts,
	}
	for i := 1; i <= 6; i++ {
		cat := fmt.Sprintf("expansion-%d", i)
		data[fmt.Sprintf("expansion_%d_keys", i)] = keysByCategory(keys, cat)
	}
	return data, nil
}

// Render executes the device's template against its data context. The
// template path resolves strictly under the renderer's root.
func (r *Renderer) Render(ctx context.Context, dev *models.Device) (string, error) {
	path := filepath.Join(r.root, filepath.Clean("/"+dev.TemplatePath))
	if !strings.HasPrefix(path, filepath.Clean(r.root)+string(filepath.Separator)) {
		return "", fmt.Errorf("template path %q escapes template root", dev.TemplatePath)
	}

	tpl, err := template.ParseFiles(path)
	if err != nil {
		return "", fmt.Errorf("parsing template %s: %w", dev.TemplatePath, err)
	}

	data, err := r.Context(ctx, dev)
	if err != nil {
		return "", err
	}

	var b strings.Builder
	if err := tpl.Execute(&b, data); err != nil {
		return "", fmt.Errorf("rendering %s: %w", dev.TemplatePath, err)
	}
	return b.String(), nil
}
