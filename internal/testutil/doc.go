// Package testutil provides test helpers shared by the client and server
// packages: a controllable clock, request builders, a fake OpenID Connect
// provider laid out like the Microsoft identity platform, and a scripted
// browser that plays the user's part in interactive flows.
package testutil
