package main

import (
	tap "github.com/datazip-inc/gorgias-tap"
	driver "github.com/datazip-inc/gorgias-tap/drivers/gorgias/internal"
)

func main() {
	tap.RegisterDriver(&driver.Gorgias{})
}
