package standard

import (
	"math"
	"path/filepath"
	"testing"

	exprand "golang.org/x/exp/rand"

	"lensforge/pkg/domain"
	"lensforge/pkg/popapi"
)

func newRNG(seed uint64) *exprand.Rand {
	return exprand.New(exprand.NewSource(seed))
}

func TestRegisterAllModels(t *testing.T) {
	reg := popapi.NewRegistry()
	p := New()
	if p.Name() != "standard" || p.Version() == "" {
		t.Fatalf("plugin identity = %s %s", p.Name(), p.Version())
	}
	if err := p.Register(reg); err != nil {
		t.Fatalf("Register: %v", err)
	}
	expect := map[popapi.Kind][]string{
		popapi.KindLOS:           {"shear_planes"},
		popapi.KindSubhalo:       {"sis_population"},
		popapi.KindMainDeflector: {"sie_shear"},
		popapi.KindSource:        {"catalog_image", "sersic"},
		popapi.KindLensLight:     {"sersic"},
		popapi.KindPointSource:   {"source_position"},
	}
	for kind, names := range expect {
		got := reg.Names(kind)
		if len(got) != len(names) {
			t.Fatalf("%s models = %v, want %v", kind, got, names)
		}
		for i := range names {
			if got[i] != names[i] {
				t.Fatalf("%s models = %v, want %v", kind, got, names)
			}
		}
	}
	// double registration must fail
	if err := p.Register(reg); err == nil {
		t.Fatal("expected error re-registering the suite")
	}
}

func TestSIEShearDraw(t *testing.T) {
	adapter, err := newSIEShear(nil)
	if err != nil {
		t.Fatalf("newSIEShear: %v", err)
	}
	adapter.UpdateParameters(domain.Sample{
		domain.ComponentMainDeflector: {
			"theta_E": 1.2, "z_lens": 0.5,
			"e1": 0.1, "e2": -0.05,
			"center_x": 0.02, "center_y": -0.01,
			"gamma1": 0.03, "gamma2": 0.0,
		},
	})
	models, kwargs, zs, err := adapter.DrawLens(newRNG(1))
	if err != nil {
		t.Fatalf("DrawLens: %v", err)
	}
	if len(models) != 2 || models[0] != "SIE" || models[1] != "SHEAR" {
		t.Fatalf("models = %v", models)
	}
	if v, _ := kwargs[0].Float("theta_E"); v != 1.2 {
		t.Fatalf("theta_E = %v", v)
	}
	if v, _ := kwargs[1].Float("gamma1"); v != 0.03 {
		t.Fatalf("gamma1 = %v", v)
	}
	if zs[0] != 0.5 || zs[1] != 0.5 {
		t.Fatalf("redshifts = %v", zs)
	}

	adapter.UpdateParameters(domain.Sample{
		domain.ComponentMainDeflector: {"z_lens": 0.5},
	})
	if _, _, _, err := adapter.DrawLens(newRNG(1)); err == nil {
		t.Fatal("expected error without theta_E")
	}
}

func TestSersicSourceDraw(t *testing.T) {
	adapter, err := newSersicSource(nil, domain.ComponentSource)
	if err != nil {
		t.Fatalf("newSersicSource: %v", err)
	}
	adapter.UpdateParameters(domain.Sample{
		domain.ComponentSource: {
			"z_source": 1.5, "mag_app": 22.5, "output_ab_zeropoint": 25.0,
			"R_sersic": 0.4, "n_sersic": 2.0, "e1": 0.05,
		},
	})
	models, kwargs, zs, err := adapter.DrawLight(newRNG(1))
	if err != nil {
		t.Fatalf("DrawLight: %v", err)
	}
	if models[0] != "SERSIC_ELLIPSE" || zs[0] != 1.5 {
		t.Fatalf("models=%v zs=%v", models, zs)
	}
	amp, _ := kwargs[0].Float("amp")
	want := math.Pow(10, -0.4*(22.5-25.0))
	if math.Abs(amp-want) > 1e-12 {
		t.Fatalf("amp = %v, want %v from mag_app", amp, want)
	}

	// lens light reads its own component and tolerates a missing z_lens
	ll, err := newSersicSource(nil, domain.ComponentLensLight)
	if err != nil {
		t.Fatalf("newSersicSource: %v", err)
	}
	ll.UpdateParameters(domain.Sample{
		domain.ComponentLensLight: {"amp": 3.0, "R_sersic": 0.6, "n_sersic": 3.0},
	})
	_, kwargs, zs, err = ll.DrawLight(newRNG(1))
	if err != nil {
		t.Fatalf("lens light DrawLight: %v", err)
	}
	if v, _ := kwargs[0].Float("amp"); v != 3.0 {
		t.Fatalf("explicit amp = %v", v)
	}
	if zs[0] != 0 {
		t.Fatalf("lens light z = %v", zs[0])
	}
}

func TestAmpFromPrecedence(t *testing.T) {
	p := domain.Params{"amp": 2.0, "mag_app": 20.0}
	if got := ampFrom(p.Float); got != 2.0 {
		t.Fatalf("explicit amp lost: %v", got)
	}
	p = domain.Params{}
	if got := ampFrom(p.Float); got != 1.0 {
		t.Fatalf("default amp = %v", got)
	}
	p = domain.Params{"mag_app": defaultZeropoint}
	if got := ampFrom(p.Float); math.Abs(got-1) > 1e-12 {
		t.Fatalf("zeropoint magnitude should give amp 1, got %v", got)
	}
}

func TestSourcePositionFallsBackToLightCenter(t *testing.T) {
	adapter, err := newSourcePosition(nil)
	if err != nil {
		t.Fatalf("newSourcePosition: %v", err)
	}
	adapter.UpdateParameters(domain.Sample{
		domain.ComponentPointSource: {"point_amp": 12.0},
		domain.ComponentSource:      {"center_x": 0.08, "center_y": -0.03},
	})
	models, kwargs, err := adapter.DrawPointSource(newRNG(1))
	if err != nil {
		t.Fatalf("DrawPointSource: %v", err)
	}
	if models[0] != "SOURCE_POSITION" {
		t.Fatalf("models = %v", models)
	}
	if v, _ := kwargs[0].Float("ra_source"); v != 0.08 {
		t.Fatalf("ra_source = %v, want the light center", v)
	}
	if v, _ := kwargs[0].Float("point_amp"); v != 12.0 {
		t.Fatalf("point_amp = %v", v)
	}

	adapter.UpdateParameters(domain.Sample{
		domain.ComponentPointSource: {
			"x_point_source": 0.2, "y_point_source": -0.1, "point_amp": 1.0,
		},
	})
	_, kwargs, err = adapter.DrawPointSource(newRNG(1))
	if err != nil {
		t.Fatalf("DrawPointSource: %v", err)
	}
	if v, _ := kwargs[0].Float("ra_source"); v != 0.2 {
		t.Fatalf("explicit position lost: %v", v)
	}
}

func TestShearPlanesDraw(t *testing.T) {
	adapter, err := newShearPlanes(nil)
	if err != nil {
		t.Fatalf("newShearPlanes: %v", err)
	}
	adapter.UpdateParameters(domain.Sample{
		domain.ComponentLOS: {
			"n_planes": 3, "shear_sigma": 0.01,
			"convergence_sigma": 0.005, "convergence_mean": 0.001,
			"fov": 6.4,
		},
		domain.ComponentMainDeflector: {"z_lens": 0.5},
		domain.ComponentSource:        {"z_source": 2.0},
	})
	models, kwargs, zs, err := adapter.DrawLens(newRNG(4))
	if err != nil {
		t.Fatalf("DrawLens: %v", err)
	}
	if len(models) != 6 {
		t.Fatalf("drew %d models, want 3 shear+convergence pairs", len(models))
	}
	for i := 0; i < len(models); i += 2 {
		if models[i] != "SHEAR" || models[i+1] != "CONVERGENCE" {
			t.Fatalf("pair %d = %s, %s", i/2, models[i], models[i+1])
		}
		if zs[i] != zs[i+1] {
			t.Fatalf("pair %d redshifts differ", i/2)
		}
		if zs[i] <= 0 || zs[i] >= 2.0 {
			t.Fatalf("plane redshift %v outside (0, z_source)", zs[i])
		}
	}
	if len(kwargs) != 6 {
		t.Fatalf("kwargs length %d", len(kwargs))
	}

	// stochastic population: a second draw differs
	_, kwargs2, _, err := adapter.DrawLens(newRNG(5))
	if err != nil {
		t.Fatalf("second DrawLens: %v", err)
	}
	g1a, _ := kwargs[0].Float("gamma1")
	g1b, _ := kwargs2[0].Float("gamma1")
	if g1a == g1b {
		t.Fatal("independent draws returned identical shear")
	}
}

func TestShearPlanesAverageDeflection(t *testing.T) {
	adapter, err := newShearPlanes(nil)
	if err != nil {
		t.Fatalf("newShearPlanes: %v", err)
	}
	adapter.UpdateParameters(domain.Sample{
		domain.ComponentLOS: {
			"n_planes": 4, "convergence_mean": 0.002, "fov": 6.4,
		},
		domain.ComponentMainDeflector: {"z_lens": 0.5},
		domain.ComponentSource:        {"z_source": 2.0},
	})
	models, kwargs, zs, err := adapter.AverageDeflection(64)
	if err != nil {
		t.Fatalf("AverageDeflection: %v", err)
	}
	if len(models) != 1 || models[0] != "ALPHA_GRID" {
		t.Fatalf("models = %v", models)
	}
	if zs[0] != 0.5 {
		t.Fatalf("correction plane z = %v, want z_lens", zs[0])
	}
	ax, ok := kwargs[0]["alpha_x"].(*domain.Grid)
	if !ok || ax.W != 64 {
		t.Fatalf("alpha_x grid = %v", kwargs[0]["alpha_x"])
	}
	scale, _ := kwargs[0].Float("pixel_scale")
	if math.Abs(scale-0.1) > 1e-12 {
		t.Fatalf("pixel_scale = %v, want fov/gridPixels", scale)
	}
	// linear deflection map: alpha_x at the grid center is ~0
	if v := ax.At(32, 32); math.Abs(v) > 0.01 {
		t.Fatalf("central deflection %v not near zero", v)
	}

	// no mean convergence means no correction
	adapter.UpdateParameters(domain.Sample{
		domain.ComponentLOS:    {"n_planes": 4, "fov": 6.4},
		domain.ComponentSource: {"z_source": 2.0},
	})
	models, _, _, err = adapter.AverageDeflection(64)
	if err != nil {
		t.Fatalf("AverageDeflection: %v", err)
	}
	if len(models) != 0 {
		t.Fatalf("unexpected correction %v", models)
	}
}

func TestSISPopulationDraw(t *testing.T) {
	adapter, err := newSISPopulation(nil)
	if err != nil {
		t.Fatalf("newSISPopulation: %v", err)
	}
	adapter.UpdateParameters(domain.Sample{
		domain.ComponentSubhalo: {
			"n_mean": 20.0, "theta_e_min": 0.005, "theta_e_max": 0.05, "r_max": 2.0,
		},
		domain.ComponentMainDeflector: {"z_lens": 0.5, "center_x": 0.1, "center_y": -0.2},
	})
	models, kwargs, zs, err := adapter.DrawLens(newRNG(8))
	if err != nil {
		t.Fatalf("DrawLens: %v", err)
	}
	if len(models) == 0 {
		t.Fatal("Poisson(20) drew zero subhalos")
	}
	for i, name := range models {
		if name != "SIS" {
			t.Fatalf("model %d = %s", i, name)
		}
		thetaE, _ := kwargs[i].Float("theta_E")
		if thetaE < 0.005 || thetaE > 0.05 {
			t.Fatalf("theta_E %v outside bounds", thetaE)
		}
		cx, _ := kwargs[i].Float("center_x")
		cy, _ := kwargs[i].Float("center_y")
		if math.Hypot(cx-0.1, cy+0.2) > 2.0+1e-9 {
			t.Fatalf("subhalo %d placed outside r_max", i)
		}
		if zs[i] != 0.5 {
			t.Fatalf("subhalo redshift %v", zs[i])
		}
	}

	// zero rate disables the layer
	adapter.UpdateParameters(domain.Sample{
		domain.ComponentSubhalo: {"n_mean": 0.0},
	})
	models, _, _, err = adapter.DrawLens(newRNG(8))
	if err != nil {
		t.Fatalf("DrawLens: %v", err)
	}
	if len(models) != 0 {
		t.Fatalf("disabled layer drew %d subhalos", len(models))
	}
}

func TestStampRoundTrip(t *testing.T) {
	dir := t.TempDir()
	g := domain.NewGrid(5, 4)
	for i := range g.Data {
		g.Data[i] = float64(i) * 0.5
	}
	path := StampPath(dir, 3)
	if err := WriteStamp(path, g, 0.06); err != nil {
		t.Fatalf("WriteStamp: %v", err)
	}
	back, scale, err := ReadStamp(path)
	if err != nil {
		t.Fatalf("ReadStamp: %v", err)
	}
	if scale != 0.06 {
		t.Fatalf("pixel scale = %v", scale)
	}
	if back.W != 5 || back.H != 4 {
		t.Fatalf("stamp is %dx%d", back.W, back.H)
	}
	for i := range g.Data {
		if back.Data[i] != g.Data[i] {
			t.Fatalf("pixel %d: %v vs %v", i, back.Data[i], g.Data[i])
		}
	}

	if _, _, err := ReadStamp(filepath.Join(dir, "missing.stamp")); err == nil {
		t.Fatal("expected error for a missing stamp")
	}
	if err := WriteStamp(filepath.Join(dir, "empty.stamp"), nil, 0.06); err == nil {
		t.Fatal("expected error writing a nil stamp")
	}
}

func TestCatalogSource(t *testing.T) {
	dir := t.TempDir()
	stamp := domain.NewGrid(6, 6)
	stamp.Set(3, 3, 2.0)
	if err := WriteStamp(StampPath(dir, 2), stamp, 0.05); err != nil {
		t.Fatalf("WriteStamp: %v", err)
	}

	adapter, err := newCatalogSource(nil)
	if err != nil {
		t.Fatalf("newCatalogSource: %v", err)
	}
	adapter.UpdateParameters(domain.Sample{
		domain.ComponentSource: {
			"catalog_folder":        dir,
			"source_inclusion_list": []float64{2},
			"random_rotation":       1.0,
			"z_source":              1.5,
			"amp":                   1.0,
		},
	})

	index, rotation := adapter.FillCatalogDefaults(newRNG(2))
	if index != 2 {
		t.Fatalf("drawn index = %d, want the only inclusion-list entry", index)
	}
	if rotation < 0 || rotation >= 2*math.Pi {
		t.Fatalf("rotation %v outside [0, 2pi)", rotation)
	}

	models, kwargs, zs, err := adapter.DrawCatalogSource(newRNG(2), index, rotation)
	if err != nil {
		t.Fatalf("DrawCatalogSource: %v", err)
	}
	if models[0] != "IMAGE" || zs[0] != 1.5 {
		t.Fatalf("models=%v zs=%v", models, zs)
	}
	img, ok := kwargs[0]["image"].(*domain.Grid)
	if !ok || img.At(3, 3) != 2.0 {
		t.Fatalf("stamp not loaded: %v", kwargs[0]["image"])
	}
	if v, _ := kwargs[0].Float("scale"); v != 0.05 {
		t.Fatalf("scale = %v", v)
	}
	if v, _ := kwargs[0].Float("phi_G"); v != rotation {
		t.Fatalf("phi_G = %v, want %v", v, rotation)
	}
}

func TestCatalogSourceExplicitSelectionWins(t *testing.T) {
	adapter, err := newCatalogSource(nil)
	if err != nil {
		t.Fatalf("newCatalogSource: %v", err)
	}
	adapter.UpdateParameters(domain.Sample{
		domain.ComponentSource: {
			"catalog_folder":        "unused",
			"source_inclusion_list": []float64{5, 6, 7},
			"random_rotation":       1.0,
			"catalog_i":             6,
			"phi":                   1.25,
		},
	})
	index, rotation := adapter.FillCatalogDefaults(newRNG(3))
	if index != 6 || rotation != 1.25 {
		t.Fatalf("explicit selection lost: index=%d phi=%v", index, rotation)
	}
}

func TestCatalogSourceRequiresFolder(t *testing.T) {
	adapter, err := newCatalogSource(nil)
	if err != nil {
		t.Fatalf("newCatalogSource: %v", err)
	}
	adapter.UpdateParameters(domain.Sample{
		domain.ComponentSource: {"z_source": 1.5},
	})
	if _, _, _, err := adapter.DrawCatalogSource(newRNG(1), 0, 0); err == nil {
		t.Fatal("expected error without catalog_folder")
	}
}
