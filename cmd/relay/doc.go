// Package main runs the eptp signaling relay.
//
// The relay never sees message plaintext. It binds each websocket to the user
// ID it registers, forwards signaling envelopes between online users, and
// wakes offline users with a web push notification when one is subscribed.
//
// Endpoints
//
//	GET /healthz    Liveness probe.
//	GET /ws         Websocket carrying JSON signaling envelopes.
//
// Configuration is read from the environment (a .env file is honoured):
//
//	RELAY_ADDR         listen address, default :8080
//	VAPID_PUBLIC_KEY   web push VAPID public key
//	VAPID_PRIVATE_KEY  web push VAPID private key
//	VAPID_SUBSCRIBER   contact address sent to push services
//
// Without VAPID keys the relay still forwards signaling; offline peers are
// simply not woken.
package main
