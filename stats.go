package gpib

type RequestStats struct {
	Num struct {
		All     int
		Invalid int
		Timeout int
		Status  int
		Other   int
	}
}

func (st *RequestStats) Percentage(num int) float64 {
	if st.Num.All == 0 {
		return 0
	}
	return 100 * float64(num) / float64(st.Num.All)
}

func (st *RequestStats) Update(err error) {
	st.Num.All++
	if err != nil {
		if IsTimeout(err) {
			st.Num.Timeout++
		} else if MsgInvalid(err) {
			st.Num.Invalid++
		} else {
			st.Num.Other++
		}
	}
}

// StatusFailed counts a request after which the controller
// reported an error in its status word. Such requests still
// count as successful in Update.
func (st *RequestStats) StatusFailed() {
	st.Num.Status++
}
