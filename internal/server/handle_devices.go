package server

import (
	"net/http"
)

type RegisterDeviceResponse struct {
	DeviceID  string `json:"deviceId"`
	DeviceKey string `json:"deviceKey"`
}

func handleRegisterDevice(d Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, key, err := d.Devices.Register(r.Context())
		if err != nil {
			writeErr(w, d.Logger, err)
			return
		}
		d.Logger.Info("device registered", "device", id)
		writeJSON(w, http.StatusCreated, RegisterDeviceResponse{DeviceID: id, DeviceKey: key})
	}
}
