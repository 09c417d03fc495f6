package main

import "signupd/internal/app"

// @title           signupd API
// @version         1.0
// @description     Multi-tenant signup verification service: dual-channel (email + phone) OTP verification.
// @BasePath        /
func main() {
	app.Run()
}
