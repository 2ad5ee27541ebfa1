package main

import (
	"os"
	"strings"
	"testing"

	"vibeailife/internal/domain"
)

func TestLoadEntriesDefaults(t *testing.T) {
	entries, err := loadEntries(strings.NewReader(`[{"id":"a","type":"GENERAL","title":"t","text":"x","aiHints":["耐心"]}]`))
	if err != nil {
		t.Fatalf("неожиданная ошибка: %v", err)
	}
	if len(entries) != 1 {
		t.Fatalf("ожидали 1 запись, получили %d", len(entries))
	}
	e := entries[0]
	if e.Level != domain.FortuneLevelGood || e.Tone != domain.FortuneToneWarm {
		t.Fatalf("значения по умолчанию не применены: %+v", e)
	}
	if len(e.AIHints) != 1 || e.AIHints[0] != "耐心" {
		t.Fatalf("подсказки потеряны: %+v", e.AIHints)
	}
}

func TestLoadEntriesRejectsObject(t *testing.T) {
	if _, err := loadEntries(strings.NewReader(`{"id":"a"}`)); err == nil {
		t.Fatalf("ожидали ошибку для объекта вместо массива")
	}
}

func TestBundledCatalogParses(t *testing.T) {
	f, err := os.Open("../../migrations/fortunes.seed.json")
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer f.Close()
	entries, err := loadEntries(f)
	if err != nil {
		t.Fatalf("каталог не читается: %v", err)
	}
	seen := map[domain.FortuneType]bool{}
	for _, e := range entries {
		if _, err := domain.ParseFortuneType(string(e.Type)); err != nil {
			t.Fatalf("запись %s: неизвестная категория %s", e.ID, e.Type)
		}
		seen[e.Type] = true
	}
	if len(seen) != 4 {
		t.Fatalf("ожидали все четыре категории, получили %v", seen)
	}
}
