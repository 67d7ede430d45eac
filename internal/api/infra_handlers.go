package api

import (
	"net/http"
)

// InfraOptionsResponse feeds provisioning forms: which locations exist,
// which OS labels they can image, and which addresses are still free.
type InfraOptionsResponse struct {
	OK        bool             `json:"ok"`
	Locations []LocationOption `json:"locations"`
	OS        []OSOption       `json:"os"`
	IPs       []IPOption       `json:"ips"`
}

type LocationOption struct {
	ID   string `json:"id"`
	Name string `json:"name"`
	Host string `json:"host"`
}

type OSOption struct {
	ID   int64  `json:"id"`
	Name string `json:"name"`
}

type IPOption struct {
	ID  int64  `json:"id"`
	IP  string `json:"ip"`
	MAC string `json:"mac"`
}

// infraOptionsHandler handles GET /api/v0/infra/options. Free addresses are
// recomputed from the datastore on every call; the answer is advisory and
// may lose a race to a concurrent provision.
func (a *API) infraOptionsHandler(w http.ResponseWriter, r *http.Request) {
	hosts, err := a.hostRepo.FindActive(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to list hosts")
		return
	}

	used, err := a.serverRepo.UsedIPs(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to load used addresses")
		return
	}

	response := InfraOptionsResponse{
		OK:        true,
		Locations: make([]LocationOption, 0, len(hosts)),
		OS:        []OSOption{},
		IPs:       []IPOption{},
	}
	seenOS := make(map[string]bool)

	for _, host := range hosts {
		response.Locations = append(response.Locations, LocationOption{
			ID:   host.ID,
			Name: host.Name,
			Host: host.HostURL,
		})

		templates, err := a.templateRepo.FindByHostID(r.Context(), host.ID)
		if err != nil {
			writeError(w, http.StatusInternalServerError, "Failed to list templates")
			return
		}
		for _, tpl := range templates {
			if !tpl.Active || seenOS[tpl.Name] {
				continue
			}
			seenOS[tpl.Name] = true
			response.OS = append(response.OS, OSOption{ID: tpl.ID, Name: tpl.Name})
		}

		entries, err := a.poolRepo.FindByHostID(r.Context(), host.ID)
		if err != nil {
			writeError(w, http.StatusInternalServerError, "Failed to list pool entries")
			return
		}
		for _, entry := range entries {
			if used[entry.IP] {
				continue
			}
			response.IPs = append(response.IPs, IPOption{ID: entry.ID, IP: entry.IP, MAC: entry.MAC})
		}
	}

	writeJSON(w, http.StatusOK, response)
}
