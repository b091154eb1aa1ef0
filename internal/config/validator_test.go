package config

import "testing"

func TestValidateDefaults(t *testing.T) {
	cfg := defaultConfig()

	validator := NewValidator()
	if err := validator.Validate(cfg); err != nil {
		t.Fatalf("Validate failed on defaults: %v", err)
	}
}

func TestValidateNetwork(t *testing.T) {
	validator := NewValidator()

	if err := validator.validateNetwork(&Network{BindAddr: "127.0.0.1:7999"}); err != nil {
		t.Errorf("Expected no error for valid bind address, got %v", err)
	}

	if err := validator.validateNetwork(&Network{BindAddr: ""}); err == nil {
		t.Errorf("Expected error for empty bind address")
	}
}

func TestValidateStaging(t *testing.T) {
	validator := NewValidator()

	if err := validator.validateStaging(&Staging{ByteBudget: 1024}); err != nil {
		t.Errorf("Expected no error for positive byte budget, got %v", err)
	}

	if err := validator.validateStaging(&Staging{ByteBudget: 0}); err == nil {
		t.Errorf("Expected error for zero byte budget")
	}

	if err := validator.validateStaging(&Staging{ByteBudget: -1}); err == nil {
		t.Errorf("Expected error for negative byte budget")
	}
}

func TestValidateStore(t *testing.T) {
	validator := NewValidator()

	valid := Store{AdmissionP: 0.6, DictionaryThresholdBytes: 1024}
	if err := validator.validateStore(&valid); err != nil {
		t.Errorf("Expected no error for valid store config, got %v", err)
	}

	for _, p := range []float64{0, -0.1, 1.1} {
		bad := Store{AdmissionP: p, DictionaryThresholdBytes: 1024}
		if err := validator.validateStore(&bad); err == nil {
			t.Errorf("Expected error for admission_p=%v", p)
		}
	}

	bad := Store{AdmissionP: 0.6, DictionaryThresholdBytes: -1}
	if err := validator.validateStore(&bad); err == nil {
		t.Errorf("Expected error for negative dictionary threshold")
	}
}

func TestValidatePerformance(t *testing.T) {
	validator := NewValidator()

	if err := validator.validatePerformance(&Performance{CommandChannelCapacity: 1, MetricsIntervalMs: 1}); err != nil {
		t.Errorf("Expected no error, got %v", err)
	}

	if err := validator.validatePerformance(&Performance{CommandChannelCapacity: 0, MetricsIntervalMs: 1}); err == nil {
		t.Errorf("Expected error for zero channel capacity")
	}

	if err := validator.validatePerformance(&Performance{CommandChannelCapacity: 1, MetricsIntervalMs: 0}); err == nil {
		t.Errorf("Expected error for zero metrics interval")
	}
}

func TestValidateQuery(t *testing.T) {
	validator := NewValidator()

	if err := validator.validateQuery(&Query{DefaultDeadlineMs: 0, DefaultLimit: 1}); err != nil {
		t.Errorf("Expected zero deadline to be valid (returns whatever RAM phase produces), got %v", err)
	}

	if err := validator.validateQuery(&Query{DefaultDeadlineMs: -1, DefaultLimit: 1}); err == nil {
		t.Errorf("Expected error for negative deadline")
	}

	if err := validator.validateQuery(&Query{DefaultDeadlineMs: 100, DefaultLimit: 0}); err == nil {
		t.Errorf("Expected error for zero limit")
	}
}
