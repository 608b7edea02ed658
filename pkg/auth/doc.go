// Package auth provides API key middleware shared by the station control
// API and the server.
//
// APIKey(mode, header, key) wraps an http.Handler. When mode != "apikey" or
// key == "" every request passes through, which suits a bench setup with
// auth disabled. Otherwise the named header (or, for WebSocket clients that
// cannot set headers, the api_key query parameter) must carry the key or
// the request is rejected with 401.
package auth
