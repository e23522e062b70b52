package main

import "teamflow/internal/app"

// @title                       TeamFlow API
// @version                     1.0
// @description                 Projects and tasks scoped to their owner.
// @BasePath                    /
// @securityDefinitions.apikey  BearerAuth
// @in                          header
// @name                        Authorization
func main() {
	app.Run()
}
