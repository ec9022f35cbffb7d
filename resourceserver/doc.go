// Package resourceserver is the API side of the weather sample: it
// validates bearer tokens issued by the Microsoft identity platform, checks
// their scopes with the guard package and serves the forecast.
//
// Token validation uses a JWKS key set fetched from the authority and kept
// fresh in the background:
//
//	v, err := resourceserver.NewValidatorFromDiscovery(ctx, oidc.NewDiscoveryClient(nil, 0, logger),
//		"https://login.microsoftonline.com/<tenant-id>",
//		resourceserver.ValidatorConfig{Audiences: []string{"api://<app-id>", "<app-id>"}})
//	if err != nil {
//		return err
//	}
//	defer v.Close()
//
//	handler, err := resourceserver.NewRouter(resourceserver.RouterConfig{
//		Validator: v,
//		Forecasts: weather.NewGenerator(nil, nil),
//	})
//
// GET /WeatherForecast answers 401 without a valid token, 403 when the
// token carries none of the accepted scopes and 200 with five forecasts
// otherwise.
package resourceserver
