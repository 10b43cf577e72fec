package optimize

import (
	"encoding/json"
	"testing"
)

const (
	json1 = "{\"a\":7.2,\"b\":1.17e-22,\"c\":0,\"d \\\"!\":0.999999}"
)

func TestMarshalParameters(tst *testing.T) {
	var pars FloatParameters
	a := 7.2
	b := 1.17e-22
	c := 0.0
	d := 0.999999
	pars.Append(NewBasicFloatParameter(&a, "a"))
	pars.Append(NewBasicFloatParameter(&b, "b"))
	pars.Append(NewBasicFloatParameter(&c, "c"))
	pars.Append(NewBasicFloatParameter(&d, "d \"!"))
	j, err := json.Marshal(pars)
	if err != nil {
		tst.Error("Error: ", err)
	}
	if string(j) != json1 {
		tst.Errorf("Incorrect encoded json value. Expected:\n'%v'\n got\n'%v'", json1, string(j))
	}
}

func TestUnmarshalParameters(tst *testing.T) {
	var pars FloatParameters
	a := 1.0
	b := 1.0
	c := 1.0
	d := 1.0
	pars.Append(NewBasicFloatParameter(&a, "a"))
	pars.Append(NewBasicFloatParameter(&b, "b"))
	pars.Append(NewBasicFloatParameter(&c, "c"))
	pars.Append(NewBasicFloatParameter(&d, "d \"!"))
	err := json.Unmarshal([]byte(json1), &pars)
	if err != nil {
		tst.Error("Error: ", err)
	}
	j, err := json.Marshal(pars)
	if string(j) != json1 {
		tst.Errorf("Incorrect encoded json value. Expected:\n'%v'\n got\n'%v'", json1, string(j))
	}
	if a != 7.2 {
		tst.Error("Value was not written through the pointer:", a)
	}
}

func TestOnChange(tst *testing.T) {
	v := 1.0
	calls := 0
	p := NewBasicFloatParameter(&v, "v")
	p.SetOnChange(func() { calls++ })
	p.Set(1.0)
	if calls != 0 {
		tst.Error("Callback called without change")
	}
	p.Set(2.0)
	if calls != 1 || v != 2.0 {
		tst.Error("Callback was not called on change")
	}
}

func TestReadLine(tst *testing.T) {
	var pars FloatParameters
	a, b := 0.0, 0.0
	pars.Append(NewBasicFloatParameter(&a, "a"))
	pars.Append(NewBasicFloatParameter(&b, "b"))
	if err := pars.ReadLine("3\t0.5\t1.25\t2.5"); err != nil {
		tst.Fatal("Error reading line:", err)
	}
	if a != 1.25 || b != 2.5 {
		tst.Error("Wrong values:", a, b)
	}
	if err := pars.ReadLine("3\t0.5\t1.25"); err == nil {
		tst.Error("Expected an error for a short line")
	}
	if pars.NamesString() != "a\tb" {
		tst.Error("Wrong names string:", pars.NamesString())
	}
}

func TestRange(tst *testing.T) {
	v := 0.5
	p := NewBasicFloatParameter(&v, "v")
	p.SetMin(0.01)
	p.SetMax(1)
	if !p.InRange() {
		tst.Error("Value should be in range")
	}
	if p.ValueInRange(0.001) {
		tst.Error("Value should be out of range")
	}
}
