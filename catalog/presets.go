package catalog

// =============================================================================
// PRESET CATALOG
// =============================================================================

// Starter definitions used when no catalog file is configured.
func SingleSession() PackageDef {
	return PackageDef{Name: "Single Session", Description: "One personal training session",
		Price: "80.00", Sessions: 1, ValidityDays: 30}
}

func FivePack() PackageDef {
	return PackageDef{Name: "Five Pack", Description: "Five personal training sessions",
		Price: "375.00", Sessions: 5, ValidityDays: 60}
}

func TenPack() PackageDef {
	return PackageDef{Name: "Ten Pack", Description: "Ten personal training sessions",
		Price: "1000.00", Sessions: 10, ValidityDays: 90}
}

func TwentyPack() PackageDef {
	return PackageDef{Name: "Twenty Pack", Description: "Twenty sessions at the best rate",
		Price: "1800.00", Sessions: 20, ValidityDays: 180}
}

// Presets returns the starter catalog, smallest package first.
func Presets() []PackageDef {
	return []PackageDef{SingleSession(), FivePack(), TenPack(), TwentyPack()}
}
